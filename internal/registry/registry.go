// Package registry tracks consumer workers: registration, availability and
// recovery of orphaned entries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// ConsumerStore is the slice of the store the registry needs.
type ConsumerStore interface {
	UpsertConsumer(ctx context.Context, ip string, port int) error
	FindConsumersByStatus(ctx context.Context, status string) ([]*models.Consumer, error)
	MarkConsumerBusy(ctx context.Context, ip string, ref models.WorkRef) error
	ReleaseConsumer(ctx context.Context, ip string) error
	GetJobChunkByID(ctx context.Context, id uuid.UUID) (*models.JobChunk, error)
	GetInfernalJobByID(ctx context.Context, id uuid.UUID) (*models.InfernalJob, error)
}

// Registry tracks each worker's address, liveness and current assignment.
type Registry struct {
	store ConsumerStore
}

// New creates a Registry over the given store.
func New(s ConsumerStore) *Registry {
	return &Registry{store: s}
}

// RegisterSelf upserts this worker as an available consumer. Called once at
// worker startup; re-registration resets any stale state from a crash.
func (r *Registry) RegisterSelf(ctx context.Context, ip string, port int) error {
	if err := r.store.UpsertConsumer(ctx, ip, port); err != nil {
		return fmt.Errorf("register consumer %s: %w", ip, err)
	}
	return nil
}

// FindAvailable returns all available consumers, ordered by address.
func (r *Registry) FindAvailable(ctx context.Context) ([]*models.Consumer, error) {
	return r.store.FindConsumersByStatus(ctx, models.ConsumerAvailable)
}

// FindBusy returns all busy consumers.
func (r *Registry) FindBusy(ctx context.Context) ([]*models.Consumer, error) {
	return r.store.FindConsumersByStatus(ctx, models.ConsumerBusy)
}

// MarkBusy records that a consumer accepted the given unit of work.
func (r *Registry) MarkBusy(ctx context.Context, ip string, ref models.WorkRef) error {
	if err := r.store.MarkConsumerBusy(ctx, ip, ref); err != nil {
		return fmt.Errorf("mark consumer %s busy: %w", ip, err)
	}
	return nil
}

// Release returns a consumer to the available pool.
func (r *Registry) Release(ctx context.Context, ip string) error {
	if err := r.store.ReleaseConsumer(ctx, ip); err != nil {
		return fmt.Errorf("release consumer %s: %w", ip, err)
	}
	return nil
}

// ReconcileOrphans frees every busy consumer whose work reference is empty
// or points at a chunk/infernal job that already reached a terminal state.
// This recovers consumers stuck busy after a crash or a lost write between
// a completion update and the consumer's own release. Returns the number of
// consumers freed.
func (r *Registry) ReconcileOrphans(ctx context.Context) (int, error) {
	busy, err := r.store.FindConsumersByStatus(ctx, models.ConsumerBusy)
	if err != nil {
		return 0, fmt.Errorf("find busy consumers: %w", err)
	}

	freed := 0
	for _, c := range busy {
		orphaned, err := r.isOrphaned(ctx, c)
		if err != nil {
			slog.Error("reconcile: cannot inspect consumer", "consumer", c.IP, "error", err)
			continue
		}
		if !orphaned {
			continue
		}
		if err := r.store.ReleaseConsumer(ctx, c.IP); err != nil {
			slog.Error("reconcile: cannot release consumer", "consumer", c.IP, "error", err)
			continue
		}
		slog.Info("reconcile: freed orphaned consumer", "consumer", c.IP)
		freed++
	}
	return freed, nil
}

func (r *Registry) isOrphaned(ctx context.Context, c *models.Consumer) (bool, error) {
	switch c.Work.Kind {
	case models.WorkChunk:
		chunk, err := r.store.GetJobChunkByID(ctx, c.Work.ChunkID)
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return models.IsTerminalChunkStatus(chunk.Status), nil
	case models.WorkInfernal:
		inf, err := r.store.GetInfernalJobByID(ctx, c.Work.JobID)
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return models.IsTerminalChunkStatus(inf.Status), nil
	default:
		// Busy with no recorded work: the delegation was interrupted
		// before the reference was written.
		return true, nil
	}
}
