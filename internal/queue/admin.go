package queue

import (
	"fmt"

	"github.com/hibiken/asynq"
)

// Admin wraps asynq's Inspector for the administrative operations spec.md
// §6 requires of the admin CLI: listing jobs by state, retrying, removing,
// and bulk-cleaning a queue.
type Admin struct {
	inspector *asynq.Inspector
}

func NewAdmin(redisAddr string) *Admin {
	return &Admin{inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (a *Admin) Close() error { return a.inspector.Close() }

// HasPendingJob reports whether a job with the deterministic identifier
// JobID(queue, meetingID) currently exists in {waiting, active, delayed}
// on queue — the check the reconciliation sweep uses to decide whether a
// meeting that advanced phase but lost its job needs re-enqueuing.
func (a *Admin) HasPendingJob(queue, meetingID string) (bool, error) {
	id := JobID(queue, meetingID)
	info, err := a.inspector.GetTaskInfo(queue, id)
	if err != nil {
		if err == asynq.ErrTaskNotFound {
			return false, nil
		}
		return false, fmt.Errorf("queue: checking job %q on %q: %w", id, queue, err)
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateActive, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true, nil
	default:
		return false, nil
	}
}

// JobForMeeting looks up the job for meetingID on queue by its
// deterministic identifier, the same lookup HasPendingJob performs but
// returning the full record for display rather than a bool. ok is false
// if no job with that identifier exists on queue.
func (a *Admin) JobForMeeting(queue, meetingID string) (info JobInfo, ok bool, err error) {
	id := JobID(queue, meetingID)
	t, err := a.inspector.GetTaskInfo(queue, id)
	if err != nil {
		if err == asynq.ErrTaskNotFound {
			return JobInfo{}, false, nil
		}
		return JobInfo{}, false, fmt.Errorf("queue: looking up job %q on %q: %w", id, queue, err)
	}
	return toJobInfo(t), true, nil
}

// JobInfo is the subset of asynq.TaskInfo the CLI surfaces.
type JobInfo struct {
	ID        string
	Queue     string
	State     string
	MeetingID string
	LastErr   string
	Retried   int
	MaxRetry  int
}

func toJobInfo(t *asynq.TaskInfo) JobInfo {
	payload, err := DecodePayload(asynq.NewTask(t.Type, t.Payload))
	meetingID := ""
	if err == nil {
		meetingID = payload.MeetingID
	}
	return JobInfo{
		ID:        t.ID,
		Queue:     t.Queue,
		State:     t.State.String(),
		MeetingID: meetingID,
		LastErr:   t.LastErr,
		Retried:   t.Retried,
		MaxRetry:  t.MaxRetry,
	}
}

// List returns every job in queue currently in the given state ("waiting",
// "active", "scheduled"/"delayed", "retry", "archived"/"failed",
// "completed").
func (a *Admin) List(queue, state string) ([]JobInfo, error) {
	var tasks []*asynq.TaskInfo
	var err error

	switch state {
	case "waiting":
		tasks, err = a.inspector.ListPendingTasks(queue)
	case "active":
		tasks, err = a.inspector.ListActiveTasks(queue)
	case "delayed", "scheduled":
		tasks, err = a.inspector.ListScheduledTasks(queue)
	case "retry":
		tasks, err = a.inspector.ListRetryTasks(queue)
	case "failed", "archived":
		tasks, err = a.inspector.ListArchivedTasks(queue)
	case "completed":
		tasks, err = a.inspector.ListCompletedTasks(queue)
	default:
		return nil, fmt.Errorf("queue: unknown job state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("queue: listing %q jobs on %q: %w", state, queue, err)
	}

	out := make([]JobInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toJobInfo(t))
	}
	return out, nil
}

// Stats reports queue depth by state, used by the CLI's "stats" subcommand.
func (a *Admin) Stats(queue string) (asynq.QueueInfo, error) {
	info, err := a.inspector.GetQueueInfo(queue)
	if err != nil {
		return asynq.QueueInfo{}, fmt.Errorf("queue: stats for %q: %w", queue, err)
	}
	return *info, nil
}

// Retry re-enqueues a failed job for another attempt.
func (a *Admin) Retry(queue, id string) error {
	if err := a.inspector.RunTask(queue, id); err != nil {
		return fmt.Errorf("queue: retrying %q on %q: %w", id, queue, err)
	}
	return nil
}

// Remove deletes a single job by ID in any state except active; asynq
// refuses to delete an active task, and Remove returns that error.
func (a *Admin) Remove(queue, id string) error {
	if err := a.inspector.DeleteTask(queue, id); err != nil {
		return fmt.Errorf("queue: removing %q from %q: %w", id, queue, err)
	}
	return nil
}

// Clean deletes every job in the named state on queue, however long ago it
// finished; it applies no age or count bound. Only "completed" and
// "failed"/"archived" are accepted; any other state is an error (use Clear
// for those).
func (a *Admin) Clean(queue, state string) error {
	switch state {
	case "completed":
		if err := a.inspector.DeleteAllCompletedTasks(queue); err != nil {
			return fmt.Errorf("queue: cleaning completed jobs on %q: %w", queue, err)
		}
	case "failed", "archived":
		if err := a.inspector.DeleteAllArchivedTasks(queue); err != nil {
			return fmt.Errorf("queue: cleaning failed jobs on %q: %w", queue, err)
		}
	default:
		return fmt.Errorf("queue: clean does not support state %q", state)
	}
	return nil
}

// Clear removes every job from queue in the named state, used by the
// CLI's "clear" subcommand for a targeted hard reset.
func (a *Admin) Clear(queue, state string) error {
	jobs, err := a.List(queue, state)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := a.Remove(queue, j.ID); err != nil {
			return err
		}
	}
	return nil
}
