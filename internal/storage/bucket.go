package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// EnsureBucket creates the S3 bucket backing the "s3" storage backend if it
// does not already exist, adapted from the donor's
// library_service/internal/storage/minio.go (which performs the identical
// bootstrap check against the same kind of S3-compatible endpoint). No
// binary in this repository calls it, and New's "s3" case does not create
// the bucket.
func EnsureBucket(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) error {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("storage: creating MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("storage: checking bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: creating bucket %q: %w", bucket, err)
	}
	return nil
}
