package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/calendar"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func TestRun_InsertsOnlyVideoMeetingsAndEnqueuesDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"d": []map[string]any{
				{"ID": "m1", "MeetingName": "Commission", "StartDate": "2025-06-05T19:00:00-04:00", "HasVideo": true},
				{"ID": "m2", "MeetingName": "No Video", "StartDate": "2025-06-06T19:00:00-04:00", "HasVideo": false},
			},
		})
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	mock.ExpectExec(`INSERT INTO meetings`).
		WithArgs("m1", "Commission", sqlmock.AnyArg(), "Meeting.aspx?Id=m1&Agenda=Agenda&lang=English", "DISCOVERED").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cal := calendar.New(srv.URL, "-04:00", 5*time.Second)
	svc := New(cal, store, producer, testLogger())

	result, err := svc.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListPendingTasks(queue.Download)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestRun_ParsesNonRFC3339StartDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"d": []map[string]any{
				{"ID": "m1", "MeetingName": "Commission", "StartDate": "2025-06-05 19:00", "HasVideo": true},
			},
		})
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	wantDate, err := time.Parse("2006-01-02 15:04", "2025-06-05 19:00")
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO meetings`).
		WithArgs("m1", "Commission", wantDate, "Meeting.aspx?Id=m1&Agenda=Agenda&lang=English", "DISCOVERED").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cal := calendar.New(srv.URL, "-04:00", 5*time.Second)
	svc := New(cal, store, producer, testLogger())

	result, err := svc.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_UnparseableStartDateReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"d": []map[string]any{
				{"ID": "m1", "MeetingName": "Commission", "StartDate": "not-a-date", "HasVideo": true},
			},
		})
	}))
	defer srv.Close()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	cal := calendar.New(srv.URL, "-04:00", 5*time.Second)
	svc := New(cal, store, producer, testLogger())

	_, err = svc.Run(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
}

func TestRun_AlreadyPresentIsSkippedNotEnqueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"d": []map[string]any{
				{"ID": "m1", "MeetingName": "Commission", "StartDate": "2025-06-05T19:00:00-04:00", "HasVideo": true},
			},
		})
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := state.New(db)

	mr := miniredis.RunT(t)
	producer := queue.NewProducer(mr.Addr(), testLogger())
	defer producer.Close()

	mock.ExpectExec(`INSERT INTO meetings`).WillReturnResult(sqlmock.NewResult(0, 0))

	cal := calendar.New(srv.URL, "-04:00", 5*time.Second)
	svc := New(cal, store, producer, testLogger())

	result, err := svc.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Skipped)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListPendingTasks(queue.Download)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunLock_SecondAcquireFails(t *testing.T) {
	mr := miniredis.RunT(t)
	lock := NewRunLock(mr.Addr(), time.Minute)
	defer lock.Close()

	ctx := context.Background()
	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx))

	ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
