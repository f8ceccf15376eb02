// Package s3 implements a cachego backend tier on Amazon S3.
//
// Records are stored as objects under a configurable prefix. Large payloads
// upload through the SDK's parallel multipart manager. An optional DynamoDB
// existence index answers ProbablyExists without an S3 round trip for keys
// this or another process has written.
//
// The tier talks to S3 through a narrow Client interface so tests can
// substitute mocks; production code passes *s3.Client.
package s3
