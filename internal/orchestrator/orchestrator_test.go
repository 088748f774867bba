package orchestrator

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func TestAdvance_UpdatesStoreAndEnqueuesNextQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), raw_video_path = \$2 WHERE id = \$3`).
		WithArgs(string(meeting.Downloaded), "raw/videos/m1.mp4", "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := New(store, producer, testLogger())
	patch := meeting.NewPatch().RawVideoPath("raw/videos/m1.mp4").Build()
	require.NoError(t, o.Advance(context.Background(), "m1", meeting.Discovered, patch))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListPendingTasks(queue.Extract)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvance_TerminalPhaseIsNoOp(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	o := New(store, producer, testLogger())
	// No SQL expectations set: Advance on a terminal phase must not touch
	// the store or the queue at all.
	err = o.Advance(context.Background(), "m1", meeting.Diarized, meeting.FieldPatch{})
	assert.NoError(t, err)
}

func TestFail_SetsFailedPhaseAndMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\), error_message = \$2, failed_at_phase = \$3 WHERE id = \$4`).
		WithArgs(string(meeting.Failed), "ffmpeg exited 1", string(meeting.Extracted), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := New(store, producer, testLogger())
	require.NoError(t, o.Fail(context.Background(), "m1", meeting.Extracted, "ffmpeg exited 1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestart_ResetsPhaseAndEnqueues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	mock.ExpectExec(`UPDATE meetings SET phase = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs(string(meeting.Downloaded), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := New(store, producer, testLogger())
	require.NoError(t, o.Restart(context.Background(), "m1", meeting.Downloaded))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListPendingTasks(queue.Extract)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}
