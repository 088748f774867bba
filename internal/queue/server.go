package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RunServer starts an asynq worker pool consuming a single queue with the
// given concurrency, mirroring the per-phase concurrency caps spec.md §5
// assigns to each worker kind (download=2, extract=3, upload=1, diarize=1).
// It blocks until the process receives a termination signal, then drains
// in-flight jobs up to drainDeadline before returning.
func RunServer(redisAddr, queue string, concurrency int, drainDeadline time.Duration, log *logrus.Logger, process func(context.Context, Payload) error) error {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency:     concurrency,
			Queues:          map[string]int{queue: 1},
			ShutdownTimeout: drainDeadline,
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return RetryConfig.BaseDelay * time.Duration(1<<uint(n))
			},
			Logger: asynqLogrusAdapter{log},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		payload, err := DecodePayload(t)
		if err != nil {
			return err
		}
		return process(ctx, payload)
	})

	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("queue: running server for %q: %w", queue, err)
	}
	return nil
}

// asynqLogrusAdapter routes asynq's internal logging through the same
// logrus.Logger every other component uses, rather than asynq's default
// stdlib-log-backed logger.
type asynqLogrusAdapter struct {
	log *logrus.Logger
}

func (a asynqLogrusAdapter) Debug(args ...interface{}) { a.log.Debug(args...) }
func (a asynqLogrusAdapter) Info(args ...interface{})  { a.log.Info(args...) }
func (a asynqLogrusAdapter) Warn(args ...interface{})  { a.log.Warn(args...) }
func (a asynqLogrusAdapter) Error(args ...interface{}) { a.log.Error(args...) }
func (a asynqLogrusAdapter) Fatal(args ...interface{}) { a.log.Fatal(args...) }
