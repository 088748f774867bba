// Package orchestrator implements the Workflow Orchestrator (spec.md
// §4.4): the small module that advances a meeting's phase, fails it, or
// restarts it, consulting only the state store and the job queue.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

// Orchestrator drives phase transitions. It contains no I/O logic beyond
// the state store and the queue producer it wraps.
type Orchestrator struct {
	store    *state.Store
	producer *queue.Producer
	log      *logrus.Logger
}

func New(store *state.Store, producer *queue.Producer, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{store: store, producer: producer, log: log}
}

// Advance reads the transition row for fromPhase, writes the new phase and
// patch to the state store in one update, then enqueues the next phase's
// job. If fromPhase is terminal, both steps are skipped — there is nothing
// to advance to.
//
// The state-store update and the enqueue are not atomic: a crash between
// them leaves the meeting in its new phase with no queued job. This is the
// favored failure mode, tolerated because phase workers are idempotent and
// Reconciler.Sweep re-derives missing jobs from phase.
func (o *Orchestrator) Advance(ctx context.Context, meetingID string, fromPhase meeting.Phase, patch meeting.FieldPatch) error {
	nextPhase, ok := meeting.NextPhase(fromPhase)
	if !ok {
		o.log.WithFields(logrus.Fields{"meetingId": meetingID, "phase": fromPhase}).
			Debug("advance called on terminal phase, nothing to do")
		return nil
	}

	if err := o.store.UpdateMeeting(ctx, meetingID, nextPhase, patch); err != nil {
		return fmt.Errorf("orchestrator: advancing %q from %q: %w", meetingID, fromPhase, err)
	}

	nextQueue, ok := meeting.NextQueue(nextPhase)
	if !ok {
		// nextPhase is terminal (DIARIZED): the meeting is done, no more jobs.
		return nil
	}

	if err := o.producer.Enqueue(ctx, nextQueue, meetingID); err != nil {
		return fmt.Errorf("orchestrator: enqueuing %q onto %q after advancing from %q: %w", meetingID, nextQueue, fromPhase, err)
	}

	o.log.WithFields(logrus.Fields{
		"meetingId": meetingID,
		"fromPhase": fromPhase,
		"toPhase":   nextPhase,
	}).Info("advanced meeting")
	return nil
}

// Fail marks a meeting FAILED, recording the phase it was attempting and
// why. A worker calls this on a logical precondition failure
// (pipelineerr.Precondition) so an operator can intervene.
func (o *Orchestrator) Fail(ctx context.Context, meetingID string, atPhase meeting.Phase, errorMessage string) error {
	patch := meeting.NewPatch().
		ErrorMessage(errorMessage).
		FailedAtPhase(atPhase).
		Build()

	if err := o.store.UpdateMeeting(ctx, meetingID, meeting.Failed, patch); err != nil {
		return fmt.Errorf("orchestrator: failing %q at %q: %w", meetingID, atPhase, err)
	}

	o.log.WithFields(logrus.Fields{
		"meetingId": meetingID,
		"atPhase":   atPhase,
		"error":     errorMessage,
	}).Warn("meeting marked failed")
	return nil
}

// Restart resets a meeting to fromPhase and re-enqueues the corresponding
// job. Used only by operator tooling (spec.md §4.4) — never by a worker.
func (o *Orchestrator) Restart(ctx context.Context, meetingID string, fromPhase meeting.Phase) error {
	if !fromPhase.Valid() {
		return fmt.Errorf("orchestrator: restarting %q: invalid phase %q", meetingID, fromPhase)
	}

	if err := o.store.UpdateMeeting(ctx, meetingID, fromPhase, meeting.FieldPatch{}); err != nil {
		return fmt.Errorf("orchestrator: restarting %q at %q: %w", meetingID, fromPhase, err)
	}

	q, ok := meeting.QueueForPhase(fromPhase)
	if !ok {
		// fromPhase is terminal: reset the record but there is no queue to
		// drive it forward (e.g. restarting into DIARIZED itself).
		return nil
	}

	if err := o.producer.Enqueue(ctx, q, meetingID); err != nil {
		return fmt.Errorf("orchestrator: re-enqueuing %q onto %q on restart: %w", meetingID, q, err)
	}

	o.log.WithFields(logrus.Fields{"meetingId": meetingID, "phase": fromPhase}).Info("restarted meeting")
	return nil
}
