package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
)

// Remote implements Store as an HTTP client against the file server
// described in spec.md §4.2: GET /files/<relative-path> for reads,
// POST /upload/<kind>/<meetingId> (multipart, single file) for writes.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote builds a Remote Store client pointed at baseURL (e.g.
// "http://fileserver:8090").
func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (r *Remote) URLFor(_ context.Context, kind artifact.Kind, meetingID string) (string, error) {
	rel, err := artifact.PathFor(kind, meetingID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/files/%s", r.baseURL, rel), nil
}

func (r *Remote) ReadInto(ctx context.Context, kind artifact.Kind, meetingID, localPath string) error {
	url, err := r.URLFor(ctx, kind, meetingID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("storage: building request for %q: %w", url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage: fetching %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("storage: %q: %w", url, os.ErrNotExist)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storage: fetching %q: unexpected status %s", url, resp.Status)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("storage: creating %q: %w", localPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("storage: writing %q: %w", localPath, err)
	}
	return out.Close()
}

func (r *Remote) WriteFrom(ctx context.Context, localPath string, kind artifact.Kind, meetingID string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("storage: opening %q: %w", localPath, err)
	}
	defer in.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", localPath)
	if err != nil {
		return fmt.Errorf("storage: building multipart body: %w", err)
	}
	if _, err := io.Copy(part, in); err != nil {
		return fmt.Errorf("storage: reading %q: %w", localPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: closing multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/upload/%s/%s", r.baseURL, kind, meetingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("storage: building upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage: uploading to %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("storage: uploading to %q: unexpected status %s", url, resp.Status)
	}
	return nil
}

func (r *Remote) Exists(ctx context.Context, kind artifact.Kind, meetingID string) (bool, error) {
	url, err := r.URLFor(ctx, kind, meetingID)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("storage: building HEAD request for %q: %w", url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("storage: checking %q: %w", url, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

func (r *Remote) SizeOf(ctx context.Context, kind artifact.Kind, meetingID string) (int64, error) {
	url, err := r.URLFor(ctx, kind, meetingID)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: building HEAD request for %q: %w", url, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("storage: checking %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("storage: %q: unexpected status %s", url, resp.Status)
	}
	return resp.ContentLength, nil
}
