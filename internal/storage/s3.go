package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
)

// S3 implements Store against an S3-compatible object store, adapted from
// the donor's S3Storage (pkg/storage/s3.go): keys are this package's
// canonical artifact paths rather than caller-supplied keys.
type S3 struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3 builds an S3-backed Store. endpoint may be empty to use AWS itself,
// or a MinIO-compatible endpoint with pathStyle set.
func NewS3(endpoint, region, accessKey, secretKey, bucket string, pathStyle bool) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}

	cfg := &aws.Config{
		Region:           aws.String(region),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(pathStyle),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: creating AWS session: %w", err)
	}

	return &S3{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}, nil
}

func (x *S3) key(kind artifact.Kind, meetingID string) (string, error) {
	return artifact.PathFor(kind, meetingID)
}

func (x *S3) URLFor(ctx context.Context, kind artifact.Kind, meetingID string) (string, error) {
	key, err := x.key(kind, meetingID)
	if err != nil {
		return "", err
	}

	req, _ := x.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(15 * time.Minute)
	if err != nil {
		return "", fmt.Errorf("storage: presigning %q: %w", key, err)
	}
	return url, nil
}

func (x *S3) ReadInto(ctx context.Context, kind artifact.Kind, meetingID, localPath string) error {
	key, err := x.key(kind, meetingID)
	if err != nil {
		return err
	}

	result, err := x.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: getting %q from S3: %w", key, err)
	}
	defer result.Body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("storage: creating %q: %w", localPath, err)
	}
	defer out.Close()

	if _, err := out.ReadFrom(result.Body); err != nil {
		return fmt.Errorf("storage: writing %q: %w", localPath, err)
	}
	return out.Close()
}

func (x *S3) WriteFrom(ctx context.Context, localPath string, kind artifact.Kind, meetingID string) error {
	key, err := x.key(kind, meetingID)
	if err != nil {
		return err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: opening %q: %w", localPath, err)
	}
	defer in.Close()

	_, err = x.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(key),
		Body:   in,
	})
	if err != nil {
		return fmt.Errorf("storage: uploading %q to S3: %w", key, err)
	}
	return nil
}

func (x *S3) Exists(ctx context.Context, kind artifact.Kind, meetingID string) (bool, error) {
	key, err := x.key(kind, meetingID)
	if err != nil {
		return false, err
	}

	_, err = x.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("storage: checking %q: %w", key, err)
	}
	return true, nil
}

func (x *S3) SizeOf(ctx context.Context, kind artifact.Kind, meetingID string) (int64, error) {
	key, err := x.key(kind, meetingID)
	if err != nil {
		return 0, err
	}

	out, err := x.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(x.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("storage: stat %q: %w", key, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}
