// Package workers implements the four phase workers spec.md §4.6
// describes: each dequeues a job, verifies the meeting is still in the
// phase it expects, produces one phase's artifacts, and hands the result
// to the orchestrator to advance or fail. Every worker follows the same
// shape, mirroring the donor's own pattern of a small struct holding its
// collaborators plus a single Process method.
package workers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/pipelineerr"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
)

// videoDownloader is the subset of downloader.Downloader this worker
// depends on, narrowed to an interface so tests can substitute a fake
// without invoking a real subprocess.
type videoDownloader interface {
	Download(ctx context.Context, sourceURL, destPath string) error
}

// DownloadWorker implements the download phase (spec.md §4.6): fetch the
// meeting's source video and advance DISCOVERED -> DOWNLOADED.
type DownloadWorker struct {
	store     *state.Store
	artifacts storage.Store
	orch      *orchestrator.Orchestrator
	dl        videoDownloader
	scratch   string
	log       *logrus.Logger
}

func NewDownloadWorker(store *state.Store, artifacts storage.Store, orch *orchestrator.Orchestrator, dl videoDownloader, scratchDir string, log *logrus.Logger) *DownloadWorker {
	return &DownloadWorker{store: store, artifacts: artifacts, orch: orch, dl: dl, scratch: scratchDir, log: log}
}

// Process implements the func(context.Context, queue.Payload) error shape
// queue.RunServer expects.
func (w *DownloadWorker) Process(ctx context.Context, payload queue.Payload) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.JobDuration.WithLabelValues(queue.Download).Observe(time.Since(start).Seconds())
		metrics.JobsProcessed.WithLabelValues(queue.Download, outcome).Inc()
	}()

	m, err := w.store.GetMeeting(ctx, payload.MeetingID)
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Discovered, fmt.Errorf("download: loading meeting: %w", err))
	}

	if m.Phase != meeting.Discovered {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Discovered,
			pipelineerr.Preconditionf("download: meeting %q is in phase %q, expected %q", m.ID, m.Phase, meeting.Discovered))
	}

	localPath := filepath.Join(w.scratch, fmt.Sprintf("%s.mp4", artifact.Sanitize(m.ID)))
	defer os.Remove(localPath)

	if err := w.dl.Download(ctx, m.SourceURL, localPath); err != nil {
		if pipelineerr.KindOf(err) == pipelineerr.Transient {
			outcome = "transient"
			return err
		}
		outcome = "precondition"
		return w.fail(ctx, m.ID, meeting.Discovered, err)
	}

	if err := w.artifacts.WriteFrom(ctx, localPath, artifact.RawVideo, m.ID); err != nil {
		outcome = "transient"
		return fmt.Errorf("download: storing raw video for %q: %w", m.ID, err)
	}

	patch := meeting.NewPatch().RawVideoPath(mustRelPath(artifact.RawVideo, m.ID)).Build()
	if err := w.orch.Advance(ctx, m.ID, meeting.Discovered, patch); err != nil {
		outcome = "transient"
		return fmt.Errorf("download: advancing %q: %w", m.ID, err)
	}

	metrics.PhaseTransitions.WithLabelValues(string(meeting.Discovered), string(meeting.Downloaded)).Inc()
	w.log.WithFields(logrus.Fields{"meetingId": m.ID}).Info("download complete")
	return nil
}

func (w *DownloadWorker) fail(ctx context.Context, meetingID string, atPhase meeting.Phase, cause error) error {
	if err := w.orch.Fail(ctx, meetingID, atPhase, cause.Error()); err != nil {
		return fmt.Errorf("download: marking %q failed: %w (original error: %v)", meetingID, err, cause)
	}
	metrics.MeetingsFailed.WithLabelValues(string(atPhase)).Inc()
	return cause
}

// mustRelPath computes the canonical artifact path for a (kind, meetingID)
// pair already validated by an earlier WriteFrom call, so the error case
// is unreachable in practice; it panics rather than silently storing an
// empty path in the state record.
func mustRelPath(kind artifact.Kind, meetingID string) string {
	return artifact.MustPathFor(kind, meetingID)
}
