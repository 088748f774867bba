// Package storage implements the Artifact Store (spec.md §4.2): a single
// abstraction over files that is transparent to callers whether backed by
// the local filesystem, the remote file server, or (as an enrichment) S3.
package storage

import (
	"context"
	"fmt"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
)

// Store is the Artifact Store interface every worker depends on. PathFor is
// pure and lives in package artifact; everything here does I/O.
type Store interface {
	// URLFor returns a URL a consumer can use to fetch the artifact.
	URLFor(ctx context.Context, kind artifact.Kind, meetingID string) (string, error)

	// ReadInto materializes the artifact to localPath, a working path on
	// the machine the calling worker runs on.
	ReadInto(ctx context.Context, kind artifact.Kind, meetingID, localPath string) error

	// WriteFrom persists localPath's contents as the artifact of the given
	// kind for meetingID.
	WriteFrom(ctx context.Context, localPath string, kind artifact.Kind, meetingID string) error

	// Exists reports whether the artifact has been written.
	Exists(ctx context.Context, kind artifact.Kind, meetingID string) (bool, error)

	// SizeOf returns the artifact's size in bytes.
	SizeOf(ctx context.Context, kind artifact.Kind, meetingID string) (int64, error)
}

// Config selects and configures a Store backend, mirroring the donor's own
// storage.Config (pkg/storage/storage.go): a single struct, switched on by
// Backend, constructing whichever concrete implementation is needed.
type Config struct {
	Backend string // "local", "remote", or "s3"

	LocalRoot string

	RemoteBaseURL string

	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3PathStyle bool
}

// New constructs the Store named by cfg.Backend.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocal(cfg.LocalRoot)
	case "remote":
		return NewRemote(cfg.RemoteBaseURL), nil
	case "s3":
		return NewS3(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PathStyle)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
