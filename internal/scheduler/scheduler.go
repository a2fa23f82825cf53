// Package scheduler runs the producer's periodic assignment loop: matching
// pending work against available consumers and reclaiming orphaned ones.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nucleohub/seqdispatch/internal/delegate"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// WorkSource supplies pending work in strict (priority, submitted) order.
type WorkSource interface {
	FindHighestPriorityWork(ctx context.Context) ([]*models.WorkUnit, error)
}

// ConsumerPool supplies available consumers and reclaims orphaned ones.
type ConsumerPool interface {
	FindAvailable(ctx context.Context) ([]*models.Consumer, error)
	ReconcileOrphans(ctx context.Context) (int, error)
}

// Delegator hands one unit of work to one consumer.
type Delegator interface {
	Delegate(ctx context.Context, consumer *models.Consumer, unit *models.WorkUnit) error
}

// Scheduler is the single long-lived control loop of the producer. It is
// polling, not event-driven: work submitted after a tick starts waits for
// the next tick.
type Scheduler struct {
	work      WorkSource
	pool      ConsumerPool
	delegator Delegator
	interval  time.Duration
}

// New creates a Scheduler waking every interval.
func New(work WorkSource, pool ConsumerPool, d Delegator, interval time.Duration) *Scheduler {
	return &Scheduler{work: work, pool: pool, delegator: d, interval: interval}
}

// Run drives the loop until ctx is cancelled. It returns only after the
// in-flight tick has finished, so callers can await a clean shutdown. A
// failed tick is logged and never stops the loop.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass: fetch pending work and available
// consumers, pair them greedily front-to-front in priority order, then
// reconcile orphaned consumers. Any consumer can run any unit; matching
// consumer capability to a database is a known simplification.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: tick panicked", "panic", r)
		}
	}()

	units, err := s.work.FindHighestPriorityWork(ctx)
	if err != nil {
		slog.Error("scheduler: cannot fetch pending work", "error", err)
		return
	}
	consumers, err := s.pool.FindAvailable(ctx)
	if err != nil {
		slog.Error("scheduler: cannot fetch available consumers", "error", err)
		return
	}

	n := len(units)
	if len(consumers) < n {
		n = len(consumers)
	}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		unit := units[i]
		consumer := consumers[i]
		if err := s.delegator.Delegate(ctx, consumer, unit); err != nil {
			// A busy refusal means a stale registry row; the unit is
			// still pending and the next tick retries it. For other
			// failures the delegator already applied the compensating
			// state transitions. Either way one failed hand-off never
			// aborts the rest of the tick.
			if errors.Is(err, delegate.ErrBusy) {
				slog.Warn("scheduler: consumer busy, unit stays pending",
					"consumer", consumer.IP, "job_id", unit.JobID)
				continue
			}
			slog.Error("scheduler: delegation failed",
				"consumer", consumer.IP, "job_id", unit.JobID,
				"database", unit.Database, "error", err)
			continue
		}
		slog.Info("scheduler: delegated",
			"consumer", consumer.IP, "job_id", unit.JobID, "database", unit.Database)
	}

	freed, err := s.pool.ReconcileOrphans(ctx)
	if err != nil {
		slog.Error("scheduler: reconcile failed", "error", err)
		return
	}
	if freed > 0 {
		slog.Info("scheduler: reconciled orphaned consumers", "freed", freed)
	}
}
