// Package videohost implements the client contract for the external
// video-hosting service the upload worker publishes to (spec.md §4.6).
// The host's OAuth flow and API surface are external collaborators, out
// of scope per spec.md §1; this package owns the publish request/response
// shape and the idempotency-token mechanism spec.md §1's Non-goals call
// for ("at-least-once with idempotency tokens is sufficient") but never
// specify concretely.
package videohost

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// idempotencyNamespace is a fixed UUID namespace so every process
// generating a token for the same (meetingId, attempt) pair agrees on the
// result, without any shared counter or coordination.
var idempotencyNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// IdempotencyToken deterministically derives a token from meetingID and
// attempt, so that a retried publish call after a crash or queue-retry
// reuses the same token and the external host can recognize the retry
// rather than creating a duplicate.
func IdempotencyToken(meetingID string, attempt int) string {
	name := fmt.Sprintf("%s:%d", meetingID, attempt)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// PlaylistResult reports the outcome of attaching the video to one
// playlist/category during publish.
type PlaylistResult struct {
	PlaylistID string
	Attached   bool
	Error      string
}

// PublishRequest carries everything the upload worker assembles before
// calling Publish: title, description (the chapters text), tags, and the
// playlist identifiers matched from the upload worker's regex table.
type PublishRequest struct {
	Title             string
	Description       string
	Tags              []string
	PlaylistIDs       []string
	IdempotencyToken  string
	VideoPath         string
}

// PublishResult is what the upload worker patches into the meeting record.
type PublishResult struct {
	URL       string
	Playlists []PlaylistResult
}

// Client is the interface the upload worker depends on. A concrete
// implementation talks to the real hosting API; tests substitute a fake.
type Client interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}
