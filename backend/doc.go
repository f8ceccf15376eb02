// Package backend provides the storage tiers behind the cachego request
// engine.
//
// Backend is the contract every tier satisfies. Implementations must be safe
// for concurrent use; the engine never serializes access to them.
//
// # Built-in Implementations
//
//   - Memory: in-process map, useful as an L0 hot tier and in tests
//   - Local: local filesystem with atomic writes and mmap reads
//   - Chain: ordered composition of tiers with read-through backfill
//   - s3.Store: Amazon S3, optionally paired with a DynamoDB existence index
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Wrappers
//
//   - Compressed: transparent payload compression (zstd or LZ4)
//   - Throttled: byte-rate limiting for shared remote tiers
//
// Wrappers compose freely:
//
//	tier := backend.NewThrottled(
//	    backend.NewCompressed(s3tier, backend.CompressionZstd),
//	    8<<20, // 8 MiB/s
//	)
package backend
