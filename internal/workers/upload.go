package workers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/config"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/pipelineerr"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
	"github.com/jonchurch/gnv-city-meetings/internal/videohost"
)

// UploadWorker implements the upload phase (spec.md §4.6): publish the
// downloaded video to the external host, attach matching playlists, and
// advance EXTRACTED -> UPLOADED.
type UploadWorker struct {
	store       *state.Store
	artifacts   storage.Store
	orch        *orchestrator.Orchestrator
	host        videohost.Client
	playlists   map[string]string
	rules       []config.PlaylistRule
	locationTag string
	scratch     string
	log         *logrus.Logger
}

func NewUploadWorker(store *state.Store, artifacts storage.Store, orch *orchestrator.Orchestrator, host videohost.Client, playlists map[string]string, rules []config.PlaylistRule, locationTag, scratchDir string, log *logrus.Logger) *UploadWorker {
	return &UploadWorker{
		store:       store,
		artifacts:   artifacts,
		orch:        orch,
		host:        host,
		playlists:   playlists,
		rules:       rules,
		locationTag: locationTag,
		scratch:     scratchDir,
		log:         log,
	}
}

func (w *UploadWorker) Process(ctx context.Context, payload queue.Payload) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.JobDuration.WithLabelValues(queue.Upload).Observe(time.Since(start).Seconds())
		metrics.JobsProcessed.WithLabelValues(queue.Upload, outcome).Inc()
	}()

	m, err := w.store.GetMeeting(ctx, payload.MeetingID)
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Extracted, fmt.Errorf("upload: loading meeting: %w", err))
	}

	if m.Phase != meeting.Extracted {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Extracted,
			pipelineerr.Preconditionf("upload: meeting %q is in phase %q, expected %q", m.ID, m.Phase, meeting.Extracted))
	}

	localVideo := filepath.Join(w.scratch, fmt.Sprintf("%s.mp4", artifact.Sanitize(m.ID)))
	if err := w.artifacts.ReadInto(ctx, artifact.RawVideo, m.ID, localVideo); err != nil {
		outcome = "transient"
		return fmt.Errorf("upload: reading raw video for %q: %w", m.ID, err)
	}
	defer os.Remove(localVideo)

	localChapters := filepath.Join(w.scratch, fmt.Sprintf("%s_chapters.txt", artifact.Sanitize(m.ID)))
	if err := w.artifacts.ReadInto(ctx, artifact.DerivedChapters, m.ID, localChapters); err != nil {
		outcome = "transient"
		return fmt.Errorf("upload: reading chapters for %q: %w", m.ID, err)
	}
	defer os.Remove(localChapters)

	description, err := os.ReadFile(localChapters)
	if err != nil {
		outcome = "transient"
		return fmt.Errorf("upload: rereading chapters for %q: %w", m.ID, err)
	}

	title := fmt.Sprintf("%s - %s | %s", m.Title, m.Date.Format("2006-01-02"), w.locationTag)
	playlistIDs := matchPlaylists(m.Title, w.rules, w.playlists)

	result, err := w.host.Publish(ctx, videohost.PublishRequest{
		Title:            title,
		Description:      string(description),
		Tags:             []string{"city council", "public meeting"},
		PlaylistIDs:      playlistIDs,
		IdempotencyToken: videohost.IdempotencyToken(m.ID, 1),
		VideoPath:        localVideo,
	})
	if err != nil {
		outcome = "transient"
		return fmt.Errorf("upload: publishing %q: %w", m.ID, err)
	}

	for _, p := range result.Playlists {
		if !p.Attached {
			w.log.WithFields(logrus.Fields{"meetingId": m.ID, "playlistId": p.PlaylistID, "error": p.Error}).
				Warn("playlist attachment failed, continuing")
		}
	}

	patch := meeting.NewPatch().PublishedURL(result.URL).Build()
	if err := w.orch.Advance(ctx, m.ID, meeting.Extracted, patch); err != nil {
		outcome = "transient"
		return fmt.Errorf("upload: advancing %q: %w", m.ID, err)
	}

	metrics.PhaseTransitions.WithLabelValues(string(meeting.Extracted), string(meeting.Uploaded)).Inc()
	w.log.WithFields(logrus.Fields{"meetingId": m.ID, "url": result.URL}).Info("upload complete")
	return nil
}

// matchPlaylists returns the identifiers for every rule in order whose
// pattern matches title and whose configured value is non-empty, per
// spec.md §8 scenario 3.
func matchPlaylists(title string, rules []config.PlaylistRule, playlists map[string]string) []string {
	var ids []string
	for _, r := range rules {
		if !r.Pattern.MatchString(title) {
			continue
		}
		id, ok := playlists[r.Name]
		if !ok || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (w *UploadWorker) fail(ctx context.Context, meetingID string, atPhase meeting.Phase, cause error) error {
	if err := w.orch.Fail(ctx, meetingID, atPhase, cause.Error()); err != nil {
		return fmt.Errorf("upload: marking %q failed: %w (original error: %v)", meetingID, err, cause)
	}
	metrics.MeetingsFailed.WithLabelValues(string(atPhase)).Inc()
	return cause
}
