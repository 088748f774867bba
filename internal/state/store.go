// Package state implements the durable State Store (spec.md §4.1): the
// single source of truth mapping a meetingId to its Meeting record, with
// secondary indexes on phase and date.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
)

// ErrNotFound is returned by GetMeeting when no row exists for the given
// meeting ID.
var ErrNotFound = errors.New("state: meeting not found")

// InsertOutcome reports whether InsertIfAbsent actually inserted a new
// row, per spec.md §4.1's idempotent contract required by Discovery.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	AlreadyPresent
)

// Store is the durable mapping from meetingId to Meeting record described
// by spec.md §4.1. All methods are safe for concurrent use by multiple
// workers; updates are serialized by the underlying database.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres using the given DSN, matching the connection
// pool tuning the donor's services apply to every sql.DB (see
// library_service/main.go and discovery_service/main.go).
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("state: opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const meetingColumns = `
	id, title, scheduled_date, source_url, phase,
	raw_video_path, derived_chapters_path, derived_metadata_path,
	derived_audio_path, derived_diarized_path, published_url,
	error_message, failed_at_phase, created_at, updated_at`

func scanMeeting(row interface{ Scan(...any) error }) (meeting.Meeting, error) {
	var m meeting.Meeting
	var phase, failedAtPhase sql.NullString
	var rawVideo, chapters, metadata, audio, diarized, publishedURL, errMsg sql.NullString

	if err := row.Scan(
		&m.ID, &m.Title, &m.Date, &m.SourceURL, &phase,
		&rawVideo, &chapters, &metadata, &audio, &diarized, &publishedURL,
		&errMsg, &failedAtPhase, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return meeting.Meeting{}, err
	}

	m.Phase = meeting.Phase(phase.String)
	m.RawVideoPath = rawVideo.String
	m.DerivedChaptersPath = chapters.String
	m.DerivedMetadataPath = metadata.String
	m.DerivedAudioPath = audio.String
	m.DerivedDiarizedPath = diarized.String
	m.PublishedURL = publishedURL.String
	m.ErrorMessage = errMsg.String
	m.FailedAtPhase = meeting.Phase(failedAtPhase.String)
	return m, nil
}

// GetMeeting returns the meeting with the given ID, or ErrNotFound.
func (s *Store) GetMeeting(ctx context.Context, id string) (meeting.Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meeting.Meeting{}, ErrNotFound
		}
		return meeting.Meeting{}, fmt.Errorf("state: get meeting %q: %w", id, err)
	}
	return m, nil
}

// GetByPhase returns every meeting currently in the given phase, using
// the secondary index on phase (spec.md §4.1).
func (s *Store) GetByPhase(ctx context.Context, phase meeting.Phase) ([]meeting.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE phase = $1 ORDER BY scheduled_date`, string(phase))
	if err != nil {
		return nil, fmt.Errorf("state: get by phase %q: %w", phase, err)
	}
	defer rows.Close()

	var out []meeting.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("state: scanning meeting row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetByDateRange returns every meeting whose scheduled date falls within
// [from, to), using the secondary index on date.
func (s *Store) GetByDateRange(ctx context.Context, from, to time.Time) ([]meeting.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE scheduled_date >= $1 AND scheduled_date < $2 ORDER BY scheduled_date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("state: get by date range: %w", err)
	}
	defer rows.Close()

	var out []meeting.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("state: scanning meeting row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertIfAbsent inserts a newly discovered meeting in phase DISCOVERED.
// It is idempotent: if a meeting with the same ID already exists, it does
// nothing and reports AlreadyPresent, the contract spec.md §4.5's
// Discovery Service relies on for safe re-running at any cadence.
func (s *Store) InsertIfAbsent(ctx context.Context, m meeting.Meeting) (InsertOutcome, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, title, scheduled_date, source_url, phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Title, m.Date, m.SourceURL, string(meeting.Discovered),
	)
	if err != nil {
		return 0, fmt.Errorf("state: insert meeting %q: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("state: insert meeting %q: reading rows affected: %w", m.ID, err)
	}
	if n == 0 {
		return AlreadyPresent, nil
	}
	return Inserted, nil
}

// UpdateMeeting atomically writes the new phase plus any non-nil fields
// of patch, and bumps updatedAt. This is the only mutation operation
// workers and the orchestrator use once a meeting exists (spec.md §4.1).
func (s *Store) UpdateMeeting(ctx context.Context, id string, phase meeting.Phase, patch meeting.FieldPatch) error {
	set := []string{"phase = $1", "updated_at = now()"}
	args := []any{string(phase)}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.RawVideoPath != nil {
		set = append(set, "raw_video_path = "+arg(*patch.RawVideoPath))
	}
	if patch.DerivedChaptersPath != nil {
		set = append(set, "derived_chapters_path = "+arg(*patch.DerivedChaptersPath))
	}
	if patch.DerivedMetadataPath != nil {
		set = append(set, "derived_metadata_path = "+arg(*patch.DerivedMetadataPath))
	}
	if patch.DerivedAudioPath != nil {
		set = append(set, "derived_audio_path = "+arg(*patch.DerivedAudioPath))
	}
	if patch.DerivedDiarizedPath != nil {
		set = append(set, "derived_diarized_path = "+arg(*patch.DerivedDiarizedPath))
	}
	if patch.PublishedURL != nil {
		set = append(set, "published_url = "+arg(*patch.PublishedURL))
	}
	if patch.ErrorMessage != nil {
		set = append(set, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.FailedAtPhase != nil {
		set = append(set, "failed_at_phase = "+arg(string(*patch.FailedAtPhase)))
	}
	if patch.AgendaBlob != nil {
		set = append(set, "agenda_blob = "+arg(*patch.AgendaBlob))
	}
	if patch.ChaptersBlob != nil {
		set = append(set, "chapters_blob = "+arg(*patch.ChaptersBlob))
	}

	idPlaceholder := arg(id)
	query := fmt.Sprintf("UPDATE meetings SET %s WHERE id = %s", joinComma(set), idPlaceholder)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("state: update meeting %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: update meeting %q: reading rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
