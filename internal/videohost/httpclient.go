package videohost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
)

// HTTPClient is a concrete Client implementation that posts the video and
// its metadata to an external hosting API over HTTP. Its OAuth/auth flow
// is deliberately out of scope (spec.md §1); a bearer token supplied at
// construction is the entire auth story this package owns.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, token: token, http: client}
}

type publishResponse struct {
	URL       string           `json:"url"`
	Playlists []PlaylistResult `json:"playlists"`
}

// Publish uploads req.VideoPath and its metadata as a single multipart
// POST, using req.IdempotencyToken as a header so a retried call after a
// crash is recognized as a duplicate by the host rather than creating a
// second video.
func (c *HTTPClient) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaPart, err := mw.CreateFormField("metadata")
	if err != nil {
		return PublishResult{}, fmt.Errorf("videohost: building metadata field: %w", err)
	}
	meta := struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
		PlaylistIDs []string `json:"playlistIds"`
	}{req.Title, req.Description, req.Tags, req.PlaylistIDs}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return PublishResult{}, fmt.Errorf("videohost: encoding metadata: %w", err)
	}

	videoFile, err := os.Open(req.VideoPath)
	if err != nil {
		return PublishResult{}, fmt.Errorf("videohost: opening video %q: %w", req.VideoPath, err)
	}
	defer videoFile.Close()

	videoPart, err := mw.CreateFormFile("video", req.VideoPath)
	if err != nil {
		return PublishResult{}, fmt.Errorf("videohost: building video field: %w", err)
	}
	if _, err := io.Copy(videoPart, videoFile); err != nil {
		return PublishResult{}, fmt.Errorf("videohost: streaming video: %w", err)
	}
	if err := mw.Close(); err != nil {
		return PublishResult{}, fmt.Errorf("videohost: closing multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", &body)
	if err != nil {
		return PublishResult{}, fmt.Errorf("videohost: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return PublishResult{}, fmt.Errorf("videohost: calling host: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PublishResult{}, fmt.Errorf("videohost: host returned status %s", resp.Status)
	}

	var decoded publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return PublishResult{}, fmt.Errorf("videohost: decoding response: %w", err)
	}

	return PublishResult{URL: decoded.URL, Playlists: decoded.Playlists}, nil
}
