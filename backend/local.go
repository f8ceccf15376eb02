package backend

import (
	"context"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/cachego/internal/mmap"
)

const localExt = ".ddc"

// Local implements Backend on the local filesystem.
//
// Records live under root with a two-level fan-out derived from the key, so
// very large caches do not degenerate into one huge directory. Writes go to
// a temp file in the target directory and are renamed into place, so readers
// never observe a partial record. Reads are memory-mapped.
type Local struct {
	root      string
	transient TransientSet
}

// NewLocal creates a filesystem tier rooted at root. The directory is
// created if it does not exist.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: root}, nil
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

// path maps a cache key to its file location. Keys shorter than the fan-out
// width are stored flat.
func (l *Local) path(key string) string {
	if len(key) >= 4 {
		return filepath.Join(l.root, key[0:2], key[2:4], key+localExt)
	}
	return filepath.Join(l.root, key+localExt)
}

// Get implements Backend.
func (l *Local) Get(_ context.Context, key string) ([]byte, bool) {
	m, err := mmap.Open(l.path(key))
	if err != nil {
		return nil, false
	}
	defer m.Close()

	// Copy out of the mapping; the record must outlive the file handle.
	data := make([]byte, len(m.Data))
	copy(data, m.Data)
	return data, true
}

// Put implements Backend.
func (l *Local) Put(_ context.Context, key string, data []byte, overwrite bool) error {
	path := l.path(key)

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write-then-rename keeps concurrent readers off partial records.
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Remove implements Backend.
func (l *Local) Remove(_ context.Context, key string, transientOnly bool) error {
	if transientOnly && !l.transient.Has(key) {
		return nil
	}

	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	l.transient.Forget(key)
	return nil
}

// MarkTransient implements Backend.
func (l *Local) MarkTransient(_ context.Context, key string) {
	l.transient.Mark(key)
}

// ProbablyExists implements Backend.
func (l *Local) ProbablyExists(_ context.Context, key string) bool {
	_, err := os.Stat(l.path(key))
	return err == nil
}

// ProbablyExistsBatch implements Backend.
func (l *Local) ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	bm := roaring.New()
	for i, key := range keys {
		if l.ProbablyExists(ctx, key) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// TryToPrefetch implements Backend. The page cache warms itself on read;
// there is no faster tier inside Local to promote into.
func (l *Local) TryToPrefetch(context.Context, []string) bool {
	return false
}
