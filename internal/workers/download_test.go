package workers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/orchestrator"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
	"github.com/jonchurch/gnv-city-meetings/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

type fakeDownloader struct {
	err     error
	written string
}

func (f *fakeDownloader) Download(_ context.Context, _, destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte(f.written), 0o644)
}

func TestDownloadWorker_Process_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()
	orch := orchestrator.New(store, producer, testLogger())

	artifacts, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "title", "scheduled_date", "source_url", "phase",
		"raw_video_path", "derived_chapters_path", "derived_metadata_path",
		"derived_audio_path", "derived_diarized_path", "published_url",
		"error_message", "failed_at_phase", "created_at", "updated_at",
	}).AddRow("m1", "City Commission", now, "Meeting.aspx?Id=1", string(meeting.Discovered),
		nil, nil, nil, nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .* FROM meetings WHERE id = \$1`).WithArgs("m1").WillReturnRows(rows)

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), raw_video_path = \$2 WHERE id = \$3`).
		WithArgs(string(meeting.Downloaded), "raw/videos/m1.mp4", "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDownloadWorker(store, artifacts, orch, &fakeDownloader{written: "video bytes"}, t.TempDir(), testLogger())

	err = w.Process(context.Background(), queue.Payload{MeetingID: "m1"})
	require.NoError(t, err)

	exists, err := artifacts.Exists(context.Background(), artifact.RawVideo, "m1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadWorker_Process_WrongPhaseFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()
	orch := orchestrator.New(store, producer, testLogger())

	artifacts, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "title", "scheduled_date", "source_url", "phase",
		"raw_video_path", "derived_chapters_path", "derived_metadata_path",
		"derived_audio_path", "derived_diarized_path", "published_url",
		"error_message", "failed_at_phase", "created_at", "updated_at",
	}).AddRow("m1", "City Commission", now, "Meeting.aspx?Id=1", string(meeting.Downloaded),
		nil, nil, nil, nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .* FROM meetings WHERE id = \$1`).WithArgs("m1").WillReturnRows(rows)

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), error_message = \$2, failed_at_phase = \$3 WHERE id = \$4`).
		WithArgs(string(meeting.Failed), sqlmock.AnyArg(), string(meeting.Discovered), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDownloadWorker(store, artifacts, orch, &fakeDownloader{}, t.TempDir(), testLogger())

	err = w.Process(context.Background(), queue.Payload{MeetingID: "m1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
