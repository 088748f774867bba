package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobID_IsQueueAndMeetingScoped(t *testing.T) {
	assert.Equal(t, "download-m1", JobID(Download, "m1"))
	assert.NotEqual(t, JobID(Download, "m1"), JobID(Extract, "m1"))
}

func TestEnqueue_DedupsByJobID(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)

	p := NewProducer(mr.Addr(), log)
	t.Cleanup(func() { p.Close() })

	ctx := context.Background()
	require.NoError(t, p.Enqueue(ctx, Download, "m1"))
	// Second enqueue of the same (queue, meetingId) must be a silent no-op,
	// not an error, per spec.md §4's dedup-by-identifier contract.
	require.NoError(t, p.Enqueue(ctx, Download, "m1"))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { inspector.Close() })

	tasks, err := inspector.ListPendingTasks(Download)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)

	p := NewProducer(mr.Addr(), log)
	t.Cleanup(func() { p.Close() })

	require.NoError(t, p.Enqueue(context.Background(), Upload, "m42"))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { inspector.Close() })

	tasks, err := inspector.ListPendingTasks(Upload)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	payload, err := DecodePayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, "m42", payload.MeetingID)
}
