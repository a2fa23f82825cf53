// Package delegate implements the producer side of the delegation
// protocol: handing one unit of work to one consumer over HTTP and driving
// the compensating state transitions when the hand-off fails.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// Sentinel errors for delegation failures.
var (
	ErrUnreachable = errors.New("consumer unreachable")
	ErrRejected    = errors.New("consumer rejected work")
	ErrBusy        = errors.New("consumer already busy")
	ErrTimeout     = errors.New("delegation timed out")
)

// UnitStore is the slice of the store the client mutates.
type UnitStore interface {
	SetJobChunkStatus(ctx context.Context, jobID uuid.UUID, database, status string, opts ...store.UnitUpdateOption) (uuid.UUID, error)
	SetInfernalJobStatus(ctx context.Context, jobID uuid.UUID, status string, opts ...store.UnitUpdateOption) (uuid.UUID, error)
	UpdateJobStatusFromChildren(ctx context.Context, jobID uuid.UUID) (string, error)
}

// ConsumerMarker records a consumer taking work.
type ConsumerMarker interface {
	MarkBusy(ctx context.Context, ip string, ref models.WorkRef) error
}

// SubmitRequest is the payload POSTed to a consumer's submit endpoint.
type SubmitRequest struct {
	JobID    uuid.UUID `json:"job_id"`
	Sequence string    `json:"sequence"`
	Database string    `json:"database,omitempty"`
}

// Client delegates units of work to consumers. Side effects are confined
// to the consumer registry and the chunk/job state machine; results are
// never touched here.
type Client struct {
	store    UnitStore
	registry ConsumerMarker
	http     *http.Client
}

// NewClient creates a delegation client with a bounded request timeout.
func NewClient(s UnitStore, r ConsumerMarker, timeout time.Duration) *Client {
	return &Client{
		store:    s,
		registry: r,
		http:     &http.Client{Timeout: timeout},
	}
}

// Delegate hands one unit to one consumer. On acceptance the consumer is
// marked busy with the unit's work reference, then the unit is marked
// started; the unit is never marked started before the consumer has
// acknowledged receipt. On refusal or transport failure the unit is marked
// error and the parent job's status recomputed; the consumer is left
// available since it never took the work. No retry is attempted here.
//
// Two failures leave the unit pending instead of failing it: a busy
// refusal (the worker holds work our registry does not know about, and
// this unit was never at fault) and a cancelled context (shutdown
// mid-delegation); both resolve on a later scheduling pass.
func (c *Client) Delegate(ctx context.Context, consumer *models.Consumer, unit *models.WorkUnit) error {
	payload := SubmitRequest{
		JobID:    unit.JobID,
		Sequence: unit.Query,
		Database: unit.Database,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal submit request: %w", err)
	}

	u := fmt.Sprintf("http://%s:%d/submit-job", consumer.IP, consumer.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.failUnit(ctx, unit)
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrBusy, consumer.IP)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.failUnit(ctx, unit)
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	if err := c.registry.MarkBusy(ctx, consumer.IP, unit.Ref()); err != nil {
		// The consumer accepted but we could not record it. The next
		// reconcile pass recovers the registry row once the unit turns
		// terminal; the unit itself is still marked started below.
		slog.Error("delegate: consumer accepted but registry update failed",
			"consumer", consumer.IP, "job_id", unit.JobID, "error", err)
	}

	if _, err := c.setUnitStatus(ctx, unit, models.ChunkStatusStarted, store.WithConsumer(consumer.IP)); err != nil {
		return fmt.Errorf("mark unit started: %w", err)
	}
	return nil
}

// failUnit marks the unit error and recomputes the parent job's status.
// Failures here are logged, not returned: the delegation error itself is
// what the caller needs to see.
func (c *Client) failUnit(ctx context.Context, unit *models.WorkUnit) {
	if _, err := c.setUnitStatus(ctx, unit, models.ChunkStatusError); err != nil {
		slog.Error("delegate: cannot mark unit error", "job_id", unit.JobID, "error", err)
		return
	}
	if _, err := c.store.UpdateJobStatusFromChildren(ctx, unit.JobID); err != nil {
		slog.Error("delegate: cannot recompute job status", "job_id", unit.JobID, "error", err)
	}
}

func (c *Client) setUnitStatus(ctx context.Context, unit *models.WorkUnit, status string, opts ...store.UnitUpdateOption) (uuid.UUID, error) {
	if unit.Kind == models.WorkInfernal {
		return c.store.SetInfernalJobStatus(ctx, unit.JobID, status, opts...)
	}
	return c.store.SetJobChunkStatus(ctx, unit.JobID, unit.Database, status, opts...)
}

// classifyError maps transport-level errors to sentinel errors.
// Cancellation is handled by the caller before reaching here.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
