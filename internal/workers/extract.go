package workers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/agenda"
	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/audio"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/pipelineerr"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
)

// ExtractWorker implements the extract phase (spec.md §4.6): fetch the
// agenda page, derive chapters and metadata, attempt (optionally) an
// audio extraction, and advance DOWNLOADED -> EXTRACTED.
type ExtractWorker struct {
	store     *state.Store
	artifacts storage.Store
	orch      *orchestrator.Orchestrator
	calendarBaseURL string
	http      *http.Client
	scratch   string
	log       *logrus.Logger
}

func NewExtractWorker(store *state.Store, artifacts storage.Store, orch *orchestrator.Orchestrator, calendarBaseURL string, httpTimeout time.Duration, scratchDir string, log *logrus.Logger) *ExtractWorker {
	return &ExtractWorker{
		store:           store,
		artifacts:       artifacts,
		orch:            orch,
		calendarBaseURL: calendarBaseURL,
		http:            &http.Client{Timeout: httpTimeout},
		scratch:         scratchDir,
		log:             log,
	}
}

func (w *ExtractWorker) Process(ctx context.Context, payload queue.Payload) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.JobDuration.WithLabelValues(queue.Extract).Observe(time.Since(start).Seconds())
		metrics.JobsProcessed.WithLabelValues(queue.Extract, outcome).Inc()
	}()

	m, err := w.store.GetMeeting(ctx, payload.MeetingID)
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Downloaded, fmt.Errorf("extract: loading meeting: %w", err))
	}

	if m.Phase != meeting.Downloaded {
		outcome = "precondition"
		return w.fail(ctx, payload.MeetingID, meeting.Downloaded,
			pipelineerr.Preconditionf("extract: meeting %q is in phase %q, expected %q", m.ID, m.Phase, meeting.Downloaded))
	}

	html, err := w.fetchAgenda(ctx, m.SourceURL)
	if err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: fetching agenda for %q: %w", m.ID, err)
	}

	if err := w.artifacts.WriteFrom(ctx, html, artifact.RawAgenda, m.ID); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: storing raw agenda for %q: %w", m.ID, err)
	}
	defer os.Remove(html)

	agendaHTML, err := os.ReadFile(html)
	if err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: rereading fetched agenda for %q: %w", m.ID, err)
	}

	bookmarks, err := agenda.ParseBookmarks(string(agendaHTML))
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, m.ID, meeting.Downloaded, fmt.Errorf("extract: parsing bookmarks for %q: %w", m.ID, err))
	}
	titles, err := agenda.ParseTitles(string(agendaHTML))
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, m.ID, meeting.Downloaded, fmt.Errorf("extract: parsing titles for %q: %w", m.ID, err))
	}

	items := agenda.Join(bookmarks, titles)
	chapters := agenda.Chapters(m.Title, m.Date.Format("2006-01-02"), items)

	chaptersPath := filepath.Join(w.scratch, fmt.Sprintf("%s_chapters.txt", artifact.Sanitize(m.ID)))
	if err := os.WriteFile(chaptersPath, []byte(chapters), 0o644); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: writing local chapters for %q: %w", m.ID, err)
	}
	defer os.Remove(chaptersPath)

	if err := w.artifacts.WriteFrom(ctx, chaptersPath, artifact.DerivedChapters, m.ID); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: storing chapters for %q: %w", m.ID, err)
	}

	metadataRecord := agenda.Metadata{
		MeetingID:   m.ID,
		Title:       m.Title,
		Date:        m.Date.Format("2006-01-02"),
		AgendaData:  agenda.AgendaData{Bookmarks: bookmarks},
		ExtractedAt: time.Now().UTC().Format(time.RFC3339),
	}
	metadataJSON, err := agenda.EncodeMetadata(metadataRecord)
	if err != nil {
		outcome = "precondition"
		return w.fail(ctx, m.ID, meeting.Downloaded, fmt.Errorf("extract: encoding metadata for %q: %w", m.ID, err))
	}
	metadataPath := filepath.Join(w.scratch, fmt.Sprintf("%s_metadata.json", artifact.Sanitize(m.ID)))
	if err := os.WriteFile(metadataPath, metadataJSON, 0o644); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: writing local metadata for %q: %w", m.ID, err)
	}
	defer os.Remove(metadataPath)

	if err := w.artifacts.WriteFrom(ctx, metadataPath, artifact.DerivedMetadata, m.ID); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: storing metadata for %q: %w", m.ID, err)
	}

	patch := meeting.NewPatch().
		DerivedChaptersPath(artifact.MustPathFor(artifact.DerivedChapters, m.ID)).
		DerivedMetadataPath(artifact.MustPathFor(artifact.DerivedMetadata, m.ID)).
		AgendaBlob(string(agendaHTML)).
		ChaptersBlob(chapters)

	if audioPath, ok := w.tryExtractAudio(ctx, m); ok {
		patch = patch.DerivedAudioPath(audioPath)
	}

	if err := w.orch.Advance(ctx, m.ID, meeting.Downloaded, patch.Build()); err != nil {
		outcome = "transient"
		return fmt.Errorf("extract: advancing %q: %w", m.ID, err)
	}

	metrics.PhaseTransitions.WithLabelValues(string(meeting.Downloaded), string(meeting.Extracted)).Inc()
	w.log.WithFields(logrus.Fields{"meetingId": m.ID}).Info("extract complete")
	return nil
}

// tryExtractAudio performs the optional audio-extraction half of the
// phase. Its failure is logged and swallowed, per spec.md §4.6/§7's
// "failure of audio extraction must not fail the phase" partial-upstream
// rule — the only error case this worker tolerates rather than propagates.
func (w *ExtractWorker) tryExtractAudio(ctx context.Context, m meeting.Meeting) (string, bool) {
	localVideo := filepath.Join(w.scratch, fmt.Sprintf("%s.mp4", artifact.Sanitize(m.ID)))
	if err := w.artifacts.ReadInto(ctx, artifact.RawVideo, m.ID, localVideo); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{"meetingId": m.ID}).
			Warn("audio extraction skipped: could not read raw video")
		return "", false
	}
	defer os.Remove(localVideo)

	localAudio := filepath.Join(w.scratch, fmt.Sprintf("%s.m4a", artifact.Sanitize(m.ID)))
	if err := audio.Extract(ctx, localVideo, localAudio); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{"meetingId": m.ID}).
			Warn("audio extraction failed, continuing without derived audio")
		return "", false
	}
	defer os.Remove(localAudio)

	if err := w.artifacts.WriteFrom(ctx, localAudio, artifact.DerivedAudio, m.ID); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{"meetingId": m.ID}).
			Warn("audio extraction succeeded but storing the artifact failed")
		return "", false
	}

	return artifact.MustPathFor(artifact.DerivedAudio, m.ID), true
}

// fetchAgenda retrieves the agenda page at calendarBaseURL+sourceURL and
// writes it to a scratch file, returning its local path.
func (w *ExtractWorker) fetchAgenda(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.calendarBaseURL+"/"+sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("building agenda request: %w", err)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching agenda: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agenda page returned status %s", resp.Status)
	}

	f, err := os.CreateTemp(w.scratch, "agenda-*.html")
	if err != nil {
		return "", fmt.Errorf("creating local agenda file: %w", err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("writing local agenda file: %w", err)
	}

	return f.Name(), nil
}

func (w *ExtractWorker) fail(ctx context.Context, meetingID string, atPhase meeting.Phase, cause error) error {
	if err := w.orch.Fail(ctx, meetingID, atPhase, cause.Error()); err != nil {
		return fmt.Errorf("extract: marking %q failed: %w (original error: %v)", meetingID, err, cause)
	}
	metrics.MeetingsFailed.WithLabelValues(string(atPhase)).Inc()
	return cause
}
