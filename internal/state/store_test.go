package state

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func meetingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "scheduled_date", "source_url", "phase",
		"raw_video_path", "derived_chapters_path", "derived_metadata_path",
		"derived_audio_path", "derived_diarized_path", "published_url",
		"error_message", "failed_at_phase", "created_at", "updated_at",
	})
}

func TestGetMeeting_Found(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM meetings WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(meetingRows().AddRow(
			"m1", "City Commission", now, "https://example.gov/m1", "DISCOVERED",
			nil, nil, nil, nil, nil, nil, nil, nil, now, now,
		))

	m, err := s.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, meeting.Discovered, m.Phase)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMeeting_NotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM meetings WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(meetingRows())

	_, err := s.GetMeeting(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPhase(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM meetings WHERE phase = \$1`).
		WithArgs(string(meeting.Downloaded)).
		WillReturnRows(meetingRows().
			AddRow("m1", "A", now, "u1", "DOWNLOADED", nil, nil, nil, nil, nil, nil, nil, nil, now, now).
			AddRow("m2", "B", now, "u2", "DOWNLOADED", nil, nil, nil, nil, nil, nil, nil, nil, now, now))

	ms, err := s.GetByPhase(context.Background(), meeting.Downloaded)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsent_Inserted(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	outcome, err := s.InsertIfAbsent(context.Background(), meeting.Meeting{ID: "m1", Title: "T", SourceURL: "u"})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsent_AlreadyPresent(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO meetings`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	outcome, err := s.InsertIfAbsent(context.Background(), meeting.Meeting{ID: "m1", Title: "T", SourceURL: "u"})
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMeeting_AppliesPatch(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), raw_video_path = \$2 WHERE id = \$3`).
		WithArgs(string(meeting.Downloaded), "raw/videos/m1.mp4", "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch := meeting.NewPatch().RawVideoPath("raw/videos/m1.mp4").Build()
	err := s.UpdateMeeting(context.Background(), "m1", meeting.Downloaded, patch)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMeeting_NotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs(string(meeting.Failed), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateMeeting(context.Background(), "ghost", meeting.Failed, meeting.FieldPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
