package payments

import (
	"context"
	"time"

	"rentcar/internal/app/schedule"
)

// ReconcileJob settles payments the processor answered for but whose notification never
// arrived.
type ReconcileJob struct {
	Coordinator *Coordinator
	OlderThan   time.Duration
	Limit       int
}

func (j *ReconcileJob) Name() string { return "payments.reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	n, err := j.Coordinator.Reconcile(ctx, j.OlderThan, j.Limit)
	if n > 0 {
		j.Coordinator.logger().InfoContext(ctx, "stale payments reconciled", "settled", n)
	}
	return err
}

var _ schedule.Job = (*ReconcileJob)(nil)
