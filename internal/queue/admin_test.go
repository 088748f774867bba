package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueueLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	return log
}

func TestJobForMeeting_FindsPendingJob(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewProducer(mr.Addr(), testQueueLogger())
	defer p.Close()
	admin := NewAdmin(mr.Addr())
	defer admin.Close()

	require.NoError(t, p.Enqueue(context.Background(), Download, "m1"))

	job, ok, err := admin.JobForMeeting(Download, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", job.MeetingID)
	assert.Equal(t, JobID(Download, "m1"), job.ID)
}

func TestJobForMeeting_ReportsNoJob(t *testing.T) {
	mr := miniredis.RunT(t)
	admin := NewAdmin(mr.Addr())
	defer admin.Close()

	_, ok, err := admin.JobForMeeting(Download, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear_RemovesEveryJobInNamedState(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewProducer(mr.Addr(), testQueueLogger())
	defer p.Close()
	admin := NewAdmin(mr.Addr())
	defer admin.Close()

	require.NoError(t, p.Enqueue(context.Background(), Download, "m1"))
	require.NoError(t, p.Enqueue(context.Background(), Download, "m2"))

	require.NoError(t, admin.Clear(Download, "waiting"))

	jobs, err := admin.List(Download, "waiting")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClean_RejectsUnsupportedState(t *testing.T) {
	mr := miniredis.RunT(t)
	admin := NewAdmin(mr.Addr())
	defer admin.Close()

	err := admin.Clean(Download, "waiting")
	assert.Error(t, err)
}
