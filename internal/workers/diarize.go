package workers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/diarizer"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/pipelineerr"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
)

// DiarizeWorker implements the diarize phase (spec.md §4.6): materialize
// derived audio into a world-writable scratch directory, run the external
// diarization tool, and advance UPLOADED -> DIARIZED. If no derived audio
// was produced during extraction, diarization cannot run: this is treated
// as a logical precondition failure (spec.md §7/§8 item 5), failing the
// meeting at UPLOADED rather than regenerating a cross-phase output or
// silently skipping ahead to DIARIZED.
type DiarizeWorker struct {
	store     *state.Store
	artifacts storage.Store
	orch      *orchestrator.Orchestrator
	binary    string
	runRoot   string
	log       *logrus.Logger
}

func NewDiarizeWorker(store *state.Store, artifacts storage.Store, orch *orchestrator.Orchestrator, binary, runRoot string, log *logrus.Logger) *DiarizeWorker {
	return &DiarizeWorker{store: store, artifacts: artifacts, orch: orch, binary: binary, runRoot: runRoot, log: log}
}

func (w *DiarizeWorker) Process(ctx context.Context, payload queue.Payload) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.JobDuration.WithLabelValues(queue.Diarize).Observe(time.Since(start).Seconds())
		metrics.JobsProcessed.WithLabelValues(queue.Diarize, outcome).Inc()
	}()

	m, err := w.store.GetMeeting(ctx, payload.MeetingID)
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Uploaded, fmt.Errorf("diarize: loading meeting: %w", err))
	}

	if m.Phase != meeting.Uploaded {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Uploaded,
			pipelineerr.Preconditionf("diarize: meeting %q is in phase %q, expected %q", m.ID, m.Phase, meeting.Uploaded))
	}

	if m.DerivedAudioPath == "" {
		outcome = "precondition"
		return w.fail(ctx, m.ID, meeting.Uploaded,
			pipelineerr.Preconditionf("diarize: meeting %q has no derived audio to diarize", m.ID))
	}

	patch := meeting.NewPatch()
	diarizedPath, err := w.diarize(ctx, m)
	if err != nil {
		outcome = "transient"
		return fmt.Errorf("diarize: %q: %w", m.ID, err)
	}
	patch = patch.DerivedDiarizedPath(diarizedPath)

	if err := w.orch.Advance(ctx, m.ID, meeting.Uploaded, patch.Build()); err != nil {
		outcome = "transient"
		return fmt.Errorf("diarize: advancing %q: %w", m.ID, err)
	}

	metrics.PhaseTransitions.WithLabelValues(string(meeting.Uploaded), string(meeting.Diarized)).Inc()
	w.log.WithFields(logrus.Fields{"meetingId": m.ID}).Info("diarize complete")
	return nil
}

func (w *DiarizeWorker) diarize(ctx context.Context, m meeting.Meeting) (string, error) {
	scratchDir, err := diarizer.ScratchDir(w.runRoot, m.ID, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if cleanupErr := diarizer.Cleanup(scratchDir); cleanupErr != nil {
			w.log.WithError(cleanupErr).WithFields(logrus.Fields{"meetingId": m.ID}).
				Warn("failed to remove diarize scratch directory")
		}
	}()

	localAudio := filepath.Join(scratchDir, fmt.Sprintf("%s.m4a", artifact.Sanitize(m.ID)))
	if err := w.artifacts.ReadInto(ctx, artifact.DerivedAudio, m.ID, localAudio); err != nil {
		return "", fmt.Errorf("materializing derived audio: %w", err)
	}

	localOutput := filepath.Join(scratchDir, fmt.Sprintf("%s_diarized.json", artifact.Sanitize(m.ID)))
	if err := diarizer.Diarize(ctx, w.binary, localAudio, scratchDir, localOutput); err != nil {
		return "", fmt.Errorf("running diarization tool: %w", err)
	}

	if err := w.artifacts.WriteFrom(ctx, localOutput, artifact.DerivedDiarized, m.ID); err != nil {
		return "", fmt.Errorf("storing diarized transcript: %w", err)
	}

	return artifact.MustPathFor(artifact.DerivedDiarized, m.ID), nil
}

func (w *DiarizeWorker) fail(ctx context.Context, meetingID string, atPhase meeting.Phase, cause error) error {
	if err := w.orch.Fail(ctx, meetingID, atPhase, cause.Error()); err != nil {
		return fmt.Errorf("diarize: marking %q failed: %w (original error: %v)", meetingID, err, cause)
	}
	metrics.MeetingsFailed.WithLabelValues(string(atPhase)).Inc()
	return cause
}
