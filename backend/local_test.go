package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalT(t *testing.T) *Local {
	t.Helper()

	l, err := NewLocal(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return l
}

func TestLocal_RoundTrip(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	_, ok := l.Get(ctx, "Texture_V1_nothere")
	assert.False(t, ok)

	payload := []byte("derived payload bytes")
	require.NoError(t, l.Put(ctx, "Texture_V1_asset", payload, false))

	data, ok := l.Get(ctx, "Texture_V1_asset")
	require.True(t, ok)
	assert.Equal(t, payload, data)
}

func TestLocal_FanOutLayout(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "abcdef", []byte("x"), false))
	assert.FileExists(t, filepath.Join(l.root, "ab", "cd", "abcdef.ddc"))

	// Short keys are stored flat.
	require.NoError(t, l.Put(ctx, "ab", []byte("y"), false))
	assert.FileExists(t, filepath.Join(l.root, "ab.ddc"))
}

func TestLocal_PutNoOverwrite(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "key1", []byte("first"), false))
	require.NoError(t, l.Put(ctx, "key1", []byte("second"), false))

	data, _ := l.Get(ctx, "key1")
	assert.Equal(t, []byte("first"), data)

	require.NoError(t, l.Put(ctx, "key1", []byte("second"), true))
	data, _ = l.Get(ctx, "key1")
	assert.Equal(t, []byte("second"), data)
}

func TestLocal_NoTempFilesLeftBehind(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "abcdef", []byte("x"), false))

	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if !d.IsDir() {
			assert.Equal(t, ".ddc", filepath.Ext(path), "unexpected file %s", path)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestLocal_TransientRemove(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "stays", []byte("a"), false))
	require.NoError(t, l.Put(ctx, "leaves", []byte("b"), false))
	l.MarkTransient(ctx, "leaves")

	require.NoError(t, l.Remove(ctx, "stays", true))
	require.NoError(t, l.Remove(ctx, "leaves", true))

	assert.True(t, l.ProbablyExists(ctx, "stays"))
	assert.False(t, l.ProbablyExists(ctx, "leaves"))
}

func TestLocal_RemoveMissingKeyIsFine(t *testing.T) {
	l := newLocalT(t)

	assert.NoError(t, l.Remove(context.Background(), "never_existed", false))
}

func TestLocal_ProbablyExistsBatch(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "present1", []byte("x"), false))
	require.NoError(t, l.Put(ctx, "present2", []byte("y"), false))

	bm := l.ProbablyExistsBatch(ctx, []string{"present1", "absent", "present2"})
	assert.True(t, bm.Contains(0))
	assert.False(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))
}

func TestLocal_LargePayload(t *testing.T) {
	l := newLocalT(t)
	ctx := context.Background()

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, l.Put(ctx, "bigasset", payload, false))

	data, ok := l.Get(ctx, "bigasset")
	require.True(t, ok)
	assert.Equal(t, payload, data)
}
