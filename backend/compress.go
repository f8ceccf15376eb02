package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownCompression is returned when a frame names an algorithm this
// build does not know.
var ErrUnknownCompression = errors.New("backend: unknown compression type")

// CompressionType defines the compression algorithm used by Compressed.
type CompressionType uint8

const (
	// CompressionNone stores payloads as-is inside the frame.
	CompressionNone CompressionType = 0
	// CompressionLZ4 uses LZ4 block compression (fast, good for hot tiers).
	CompressionLZ4 CompressionType = 1
	// CompressionZstd uses zstd (better ratio, good for remote tiers).
	CompressionZstd CompressionType = 2
)

// Frame layout: magic (4) | algo (1) | rawSize uint32 LE (4) | body.
// Records written before compression was enabled carry no magic and are
// returned untouched.
var compressMagic = [4]byte{'D', 'D', 'C', 'Z'}

const frameHeaderSize = 9

// zstd encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compressed wraps a tier and transparently compresses payloads on Put and
// decompresses them on Get. Keys, existence probes, and removal semantics
// pass through unchanged.
type Compressed struct {
	inner Backend
	algo  CompressionType
}

// NewCompressed wraps inner with payload compression.
func NewCompressed(inner Backend, algo CompressionType) *Compressed {
	return &Compressed{inner: inner, algo: algo}
}

// Name implements Backend.
func (c *Compressed) Name() string { return c.inner.Name() + "+compress" }

// Get implements Backend.
func (c *Compressed) Get(ctx context.Context, key string) ([]byte, bool) {
	data, ok := c.inner.Get(ctx, key)
	if !ok {
		return nil, false
	}
	raw, err := decodeFrame(data)
	if err != nil {
		// A corrupt frame means a corrupt record; report it as a miss
		// so the caller rebuilds instead of consuming garbage.
		return nil, false
	}
	return raw, true
}

// Put implements Backend.
func (c *Compressed) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	return c.inner.Put(ctx, key, encodeFrame(c.algo, data), overwrite)
}

// Remove implements Backend.
func (c *Compressed) Remove(ctx context.Context, key string, transientOnly bool) error {
	return c.inner.Remove(ctx, key, transientOnly)
}

// MarkTransient implements Backend.
func (c *Compressed) MarkTransient(ctx context.Context, key string) {
	c.inner.MarkTransient(ctx, key)
}

// ProbablyExists implements Backend.
func (c *Compressed) ProbablyExists(ctx context.Context, key string) bool {
	return c.inner.ProbablyExists(ctx, key)
}

// ProbablyExistsBatch implements Backend.
func (c *Compressed) ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	return c.inner.ProbablyExistsBatch(ctx, keys)
}

// TryToPrefetch implements Backend.
func (c *Compressed) TryToPrefetch(ctx context.Context, keys []string) bool {
	return c.inner.TryToPrefetch(ctx, keys)
}

func encodeFrame(algo CompressionType, raw []byte) []byte {
	var body []byte

	switch algo {
	case CompressionZstd:
		enc := getZstdEncoder()
		body = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil || n == 0 {
			// Incompressible; fall back to a raw frame.
			algo = CompressionNone
			body = raw
		} else {
			body = buf[:n]
		}
	default:
		algo = CompressionNone
		body = raw
	}

	// Compression that grows the payload is not worth the decode cost.
	if algo != CompressionNone && len(body) >= len(raw) {
		algo = CompressionNone
		body = raw
	}

	frame := make([]byte, frameHeaderSize+len(body))
	copy(frame, compressMagic[:])
	frame[4] = byte(algo)
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(raw)))
	copy(frame[frameHeaderSize:], body)
	return frame
}

func decodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize || [4]byte(frame[0:4]) != compressMagic {
		// Pre-compression record; pass through.
		return frame, nil
	}

	algo := CompressionType(frame[4])
	rawSize := binary.LittleEndian.Uint32(frame[5:9])
	body := frame[frameHeaderSize:]

	switch algo {
	case CompressionNone:
		return body, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		raw, err := dec.DecodeAll(body, make([]byte, 0, rawSize))
		zstdDecoderPool.Put(dec)
		return raw, err
	case CompressionLZ4:
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, err
		}
		return raw[:n], nil
	default:
		return nil, ErrUnknownCompression
	}
}
