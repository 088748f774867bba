// Package queue implements the Job Queue (spec.md §4.3): a persistent,
// at-least-once, per-phase task queue with deterministic job identifiers
// used as a dedup key, automatic retry with exponential backoff, and
// bounded retention for visibility.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Queue names match the donor phase-transition vocabulary 1:1 with
// meeting.NextQueue's return values.
const (
	Download = "download"
	Extract  = "extract"
	Upload   = "upload"
	Diarize  = "diarize"
)

// All enumerates every queue the pipeline drives, in phase order.
var All = []string{Download, Extract, Upload, Diarize}

const taskType = "process_meeting"

// Payload is the only data carried by a job: spec.md §4's Job type is
// `{meetingId}` plus the deterministic identifier.
type Payload struct {
	MeetingID string `json:"meetingId"`
}

// RetryConfig matches spec.md §4.3's stated defaults: 3 attempts starting
// at a 2 second backoff. asynq's MaxRetry counts retries after the first
// run, so 3 attempts is the first run plus 2 retries.
var RetryConfig = struct {
	MaxRetry   int
	BaseDelay  time.Duration
}{MaxRetry: 2, BaseDelay: 2 * time.Second}

// Retention bounds, also from spec.md §4.3.
const (
	RetainCompleted = 100
	RetainFailed    = 500
)

// JobID returns the deterministic identifier spec.md §4 mandates as the
// dedup key: "<queue>-<meetingId>".
func JobID(queue, meetingID string) string {
	return fmt.Sprintf("%s-%s", queue, meetingID)
}

// Producer enqueues jobs. It is the interface the orchestrator and
// discovery service depend on.
type Producer struct {
	client *asynq.Client
	log    *logrus.Logger
}

// NewProducer builds a Producer against the given Redis address, the same
// connection settings discovery_service's cache.NewRedisCache uses.
func NewProducer(redisAddr string, log *logrus.Logger) *Producer {
	return &Producer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    log,
	}
}

func (p *Producer) Close() error { return p.client.Close() }

// Enqueue places a job for meetingID onto queue, deduplicated by
// JobID(queue, meetingID). Enqueuing a job whose identifier already
// exists among {waiting, active, delayed} is a no-op, per spec.md §4.
func (p *Producer) Enqueue(ctx context.Context, queue, meetingID string) error {
	payload, err := json.Marshal(Payload{MeetingID: meetingID})
	if err != nil {
		return fmt.Errorf("queue: marshaling payload for %q: %w", meetingID, err)
	}

	task := asynq.NewTask(taskType, payload)
	id := JobID(queue, meetingID)

	_, err = p.client.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.TaskID(id),
		asynq.MaxRetry(RetryConfig.MaxRetry),
		asynq.Retention(taskRetention(queue)),
	)
	if err != nil {
		if err == asynq.ErrTaskIDConflict {
			p.log.WithFields(logrus.Fields{"queue": queue, "meetingId": meetingID}).
				Debug("job already queued, skipping duplicate enqueue")
			return nil
		}
		return fmt.Errorf("queue: enqueuing %q onto %q: %w", meetingID, queue, err)
	}
	return nil
}

func taskRetention(_ string) time.Duration {
	// asynq keeps a completed task queryable for this per-task Retention
	// window and then deletes it. Nothing in this package bounds completed
	// or failed tasks by count: RetainCompleted and RetainFailed are not
	// applied, and Admin.Clean runs only when an operator invokes it.
	return 7 * 24 * time.Hour
}

// DecodePayload extracts the Payload from a dequeued *asynq.Task.
func DecodePayload(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return Payload{}, fmt.Errorf("queue: decoding payload: %w", err)
	}
	return p, nil
}
