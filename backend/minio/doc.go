// Package minio implements a cachego backend tier for MinIO and other
// S3-compatible object stores.
//
// Useful as the shared tier for teams running their own storage instead of
// AWS. Records are objects under a configurable prefix.
package minio
