package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cachego/backend"
)

// multipartThreshold is the payload size above which puts go through the
// parallel multipart uploader instead of a single PutObject.
const multipartThreshold = 8 << 20 // 8 MiB

// existsFanout bounds concurrent HeadObject calls in batched probes.
const existsFanout = 16

// Client is the interface for S3 operations used by the tier.
// *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store implements backend.Backend on Amazon S3.
type Store struct {
	client    Client
	uploader  *manager.Uploader
	bucket    string
	prefix    string
	index     *ExistenceIndex
	transient backend.TransientSet
}

// StoreOption configures optional Store behavior.
type StoreOption func(*Store)

// WithExistenceIndex attaches a DynamoDB existence index. ProbablyExists
// consults the index first and falls back to HeadObject on an index miss,
// so the index may lag without producing false negatives.
func WithExistenceIndex(idx *ExistenceIndex) StoreOption {
	return func(s *Store) {
		s.index = idx
	}
}

// NewStore creates an S3 tier.
// rootPrefix is prepended to all keys (e.g. "ddc/").
func NewStore(client Client, bucket, rootPrefix string, opts ...StoreOption) *Store {
	s := &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefault creates an S3 tier using the default AWS credential and region
// chain (environment, shared config, instance metadata).
func NewDefault(ctx context.Context, bucket, rootPrefix string, opts ...StoreOption) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, rootPrefix, opts...), nil
}

// Name implements backend.Backend.
func (s *Store) Name() string { return "s3" }

func (s *Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

// Get implements backend.Backend.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put implements backend.Backend. Payloads above the multipart threshold
// upload in parallel parts.
func (s *Store) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	objKey := s.objectKey(key)

	if !overwrite {
		// Racy with concurrent writers; acceptable because records for
		// one key are identical by contract.
		if s.headExists(ctx, objKey) {
			return nil
		}
	}

	var err error
	if len(data) >= multipartThreshold {
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
			Body:   bytes.NewReader(data),
		})
	} else {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
			Body:   bytes.NewReader(data),
		})
	}
	if err != nil {
		return err
	}

	if s.index != nil {
		// Index lag only costs a HeadObject later.
		_ = s.index.Add(ctx, key)
	}
	return nil
}

// Remove implements backend.Backend.
func (s *Store) Remove(ctx context.Context, key string, transientOnly bool) error {
	if transientOnly && !s.transient.Has(key) {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return err
	}

	s.transient.Forget(key)
	if s.index != nil {
		_ = s.index.Remove(ctx, key)
	}
	return nil
}

// MarkTransient implements backend.Backend.
func (s *Store) MarkTransient(_ context.Context, key string) {
	s.transient.Mark(key)
}

// ProbablyExists implements backend.Backend.
func (s *Store) ProbablyExists(ctx context.Context, key string) bool {
	if s.index != nil {
		if ok, err := s.index.Has(ctx, key); err == nil && ok {
			return true
		}
		// Index miss or error: fall through to S3 so the answer is
		// never falsely negative.
	}
	return s.headExists(ctx, s.objectKey(key))
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

// TryToPrefetch implements backend.Backend. S3 has no nearer storage to
// warm; chains handle promotion.
func (s *Store) TryToPrefetch(context.Context, []string) bool {
	return false
}

func (s *Store) headExists(ctx context.Context, objKey string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return false
		}
		// Errors other than not-found leave existence unknown; answer
		// false and let Get settle it.
		return false
	}
	return true
}
