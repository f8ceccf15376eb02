package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cachego/backend"
)

// existsFanout bounds concurrent StatObject calls in batched probes.
const existsFanout = 16

// Store implements backend.Backend for MinIO and S3-compatible storage.
type Store struct {
	client    *minio.Client
	bucket    string
	prefix    string
	transient backend.TransientSet
}

// NewStore creates a MinIO tier.
// rootPrefix is prepended to all keys (e.g. "ddc/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Name implements backend.Backend.
func (s *Store) Name() string { return "minio" }

func (s *Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Get implements backend.Backend.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put implements backend.Backend.
func (s *Store) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	objKey := s.objectKey(key)

	if !overwrite {
		if _, err := s.client.StatObject(ctx, s.bucket, objKey, minio.StatObjectOptions{}); err == nil {
			return nil
		}
	}

	_, err := s.client.PutObject(ctx, s.bucket, objKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Remove implements backend.Backend.
func (s *Store) Remove(ctx context.Context, key string, transientOnly bool) error {
	if transientOnly && !s.transient.Has(key) {
		return nil
	}

	err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}

	s.transient.Forget(key)
	return nil
}

// MarkTransient implements backend.Backend.
func (s *Store) MarkTransient(_ context.Context, key string) {
	s.transient.Mark(key)
}

// ProbablyExists implements backend.Backend.
func (s *Store) ProbablyExists(ctx context.Context, key string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, s.objectKey(key), minio.StatObjectOptions{})
	return err == nil
}

// ProbablyExistsBatch implements backend.Backend.
func (s *Store) ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	bm := roaring.New()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(existsFanout)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if s.ProbablyExists(gctx, key) {
				mu.Lock()
				bm.Add(uint32(i))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return bm
}

// TryToPrefetch implements backend.Backend.
func (s *Store) TryToPrefetch(context.Context, []string) bool {
	return false
}
