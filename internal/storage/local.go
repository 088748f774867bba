package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
)

// Local implements Store against a directory tree on the local filesystem,
// adapted from the donor's LocalStorage (pkg/storage/local.go).
type Local struct {
	root string
}

// NewLocal creates a local filesystem Artifact Store rooted at root,
// creating it if absent.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating root %q: %w", root, err)
	}
	return &Local{root: root}, nil
}

func (l *Local) resolve(kind artifact.Kind, meetingID string) (string, error) {
	rel, err := artifact.PathFor(kind, meetingID)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, rel), nil
}

func (l *Local) URLFor(_ context.Context, kind artifact.Kind, meetingID string) (string, error) {
	full, err := l.resolve(kind, meetingID)
	if err != nil {
		return "", err
	}
	return "file://" + full, nil
}

func (l *Local) ReadInto(_ context.Context, kind artifact.Kind, meetingID, localPath string) error {
	src, err := l.resolve(kind, meetingID)
	if err != nil {
		return err
	}
	return copyFile(src, localPath)
}

func (l *Local) WriteFrom(_ context.Context, localPath string, kind artifact.Kind, meetingID string) error {
	dst, err := l.resolve(kind, meetingID)
	if err != nil {
		return err
	}
	return copyFile(localPath, dst)
}

func (l *Local) Exists(_ context.Context, kind artifact.Kind, meetingID string) (bool, error) {
	full, err := l.resolve(kind, meetingID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("storage: stat %q: %w", full, err)
}

func (l *Local) SizeOf(_ context.Context, kind artifact.Kind, meetingID string) (int64, error) {
	full, err := l.resolve(kind, meetingID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, fmt.Errorf("storage: stat %q: %w", full, err)
	}
	return info.Size(), nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: creating directories for %q: %w", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("storage: opening %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("storage: creating %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("storage: copying %q to %q: %w", src, dst, err)
	}
	return out.Close()
}
