package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/meeting"
	"github.com/jonchurch/gnv-city-meetings/internal/queue"
	"github.com/jonchurch/gnv-city-meetings/internal/state"
)

// Reconciler covers the crash window spec.md §4.4 names explicitly as
// tolerated-but-recoverable: a meeting advanced in the state store with no
// corresponding job enqueued (a crash between UpdateMeeting and Enqueue in
// Advance). It is not required for correctness — workers are idempotent
// and an operator can always restart a stuck meeting by hand — but running
// it periodically removes the need for that manual step.
type Reconciler struct {
	store *state.Store
	admin *queue.Admin
	prod  *queue.Producer
	log   *logrus.Logger
}

func NewReconciler(store *state.Store, admin *queue.Admin, prod *queue.Producer, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, admin: admin, prod: prod, log: log}
}

// Sweep scans every non-terminal phase and re-enqueues a job for any
// meeting whose expected next-phase queue has no pending job for it. It
// returns the number of meetings it re-enqueued.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	repaired := 0

	for _, phase := range []meeting.Phase{meeting.Discovered, meeting.Downloaded, meeting.Extracted, meeting.Uploaded} {
		q, ok := meeting.NextQueue(phase)
		if !ok {
			continue
		}

		meetings, err := r.store.GetByPhase(ctx, phase)
		if err != nil {
			return repaired, fmt.Errorf("orchestrator: reconcile: listing phase %q: %w", phase, err)
		}

		for _, m := range meetings {
			pending, err := r.admin.HasPendingJob(q, m.ID)
			if err != nil {
				return repaired, fmt.Errorf("orchestrator: reconcile: checking %q on %q: %w", m.ID, q, err)
			}
			if pending {
				continue
			}

			if err := r.prod.Enqueue(ctx, q, m.ID); err != nil {
				return repaired, fmt.Errorf("orchestrator: reconcile: re-enqueuing %q onto %q: %w", m.ID, q, err)
			}

			r.log.WithFields(logrus.Fields{"meetingId": m.ID, "phase": phase, "queue": q}).
				Info("reconciliation re-enqueued meeting missing its job")
			repaired++
		}
	}

	return repaired, nil
}
