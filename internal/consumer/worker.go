// Package consumer implements the worker process: it accepts one delegated
// unit of work at a time, drives the external search tool, writes results
// straight to the shared store and frees its own registry entry.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/nucleohub/seqdispatch/internal/api/middleware"
	"github.com/nucleohub/seqdispatch/internal/api/response"
	"github.com/nucleohub/seqdispatch/internal/delegate"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// ResultStore is the slice of the store the worker writes to.
type ResultStore interface {
	SetJobChunkStatus(ctx context.Context, jobID uuid.UUID, database, status string, opts ...store.UnitUpdateOption) (uuid.UUID, error)
	SetInfernalJobStatus(ctx context.Context, jobID uuid.UUID, status string, opts ...store.UnitUpdateOption) (uuid.UUID, error)
	GetJobChunkByID(ctx context.Context, id uuid.UUID) (*models.JobChunk, error)
	GetInfernalJobByID(ctx context.Context, id uuid.UUID) (*models.InfernalJob, error)
	UpdateJobStatusFromChildren(ctx context.Context, jobID uuid.UUID) (string, error)
	InsertChunkResults(ctx context.Context, chunkID uuid.UUID, hits []models.Hit) error
	InsertInfernalResults(ctx context.Context, infernalID uuid.UUID, hits []models.Hit) error
}

// Registrar is the slice of the registry the worker uses for itself.
type Registrar interface {
	RegisterSelf(ctx context.Context, ip string, port int) error
	Release(ctx context.Context, ip string) error
}

// Worker runs at most one search at a time. The search itself happens in a
// background goroutine, so the HTTP server stays responsive to status
// probes while a tool run is in flight.
type Worker struct {
	store    ResultStore
	registry Registrar
	runner   Runner
	parser   Parser
	host     string
	port     int

	busy     atomic.Bool
	inFlight sync.WaitGroup
}

// New creates a Worker.
func New(s ResultStore, r Registrar, runner Runner, parser Parser, host string, port int) *Worker {
	return &Worker{
		store:    s,
		registry: r,
		runner:   runner,
		parser:   parser,
		host:     host,
		port:     port,
	}
}

// Register announces this worker as an available consumer.
func (w *Worker) Register(ctx context.Context) error {
	return w.registry.RegisterSelf(ctx, w.host, w.port)
}

// Router builds the worker's HTTP surface: the delegation endpoint and a
// liveness probe.
func (w *Worker) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Post("/submit-job", w.handleSubmit)
	r.Get("/status", w.handleStatus)
	return r
}

// Wait blocks until the in-flight search, if any, has finished.
func (w *Worker) Wait() {
	w.inFlight.Wait()
}

// Drain waits for the in-flight search to finish or ctx to expire,
// whichever comes first. Reports whether the worker drained cleanly.
// Called on graceful shutdown: a search can run for most of the run-time
// budget, far longer than any sane shutdown deadline, and an abandoned
// unit is recovered by the producer's reconcile pass.
func (w *Worker) Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) handleSubmit(rw http.ResponseWriter, r *http.Request) {
	var req delegate.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(rw, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if req.JobID == uuid.Nil || req.Sequence == "" {
		response.Error(rw, http.StatusBadRequest, "INVALID_REQUEST", "job_id and sequence are required", nil)
		return
	}

	if !w.busy.CompareAndSwap(false, true) {
		response.Error(rw, http.StatusConflict, "BUSY", "Worker is already running a search", nil)
		return
	}

	w.inFlight.Add(1)
	go w.run(Request{
		JobID:    req.JobID,
		Database: req.Database,
		Sequence: req.Sequence,
		Infernal: req.Database == "",
	})

	response.Created(rw, map[string]any{"job_id": req.JobID, "accepted": true})
}

func (w *Worker) handleStatus(rw http.ResponseWriter, r *http.Request) {
	status := models.ConsumerAvailable
	if w.busy.Load() {
		status = models.ConsumerBusy
	}
	response.JSON(rw, map[string]any{"status": status})
}

// run executes one delegated unit end to end. It deliberately uses a fresh
// context: the delegation request that triggered it has long since
// returned.
func (w *Worker) run(req Request) {
	defer w.inFlight.Done()
	defer w.busy.Store(false)
	ctx := context.Background()

	status, hits := w.execute(ctx, req)

	if len(hits) > 0 {
		if err := w.storeResults(ctx, req, hits); err != nil {
			slog.Error("worker: cannot store results", "job_id", req.JobID, "error", err)
			status = models.ChunkStatusError
		}
	}

	w.finish(ctx, req, status)

	if err := w.registry.Release(ctx, w.host); err != nil {
		// Left busy in the registry; the producer's reconcile pass frees
		// it once it sees the unit is terminal.
		slog.Error("worker: cannot release self", "consumer", w.host, "error", err)
	}
}

func (w *Worker) execute(ctx context.Context, req Request) (string, []models.Hit) {
	res, err := w.runner.Run(ctx, req)
	if err != nil {
		slog.Error("worker: search failed to start", "job_id", req.JobID, "error", err)
		return models.ChunkStatusError, nil
	}

	switch res.Outcome {
	case OutcomeTimeout:
		slog.Warn("worker: search exceeded run-time budget", "job_id", req.JobID, "database", req.Database)
		return models.ChunkStatusTimeout, nil
	case OutcomeError:
		slog.Error("worker: search exited with error", "job_id", req.JobID, "stderr", res.Stderr)
		return models.ChunkStatusError, nil
	}

	hits, err := w.parser.Parse(res.OutputPath)
	if err != nil {
		slog.Error("worker: cannot parse tool output", "job_id", req.JobID, "error", err)
		return models.ChunkStatusError, nil
	}
	return models.ChunkStatusSuccess, hits
}

// storeResults resolves the unit's row id through the idempotent status
// setter (the unit is already started, so the call is a no-op that returns
// the id) and bulk-inserts the hits. A unit that already reached a
// terminal status was completed by a duplicate delegation; its results are
// recorded and inserting ours again would double the rows.
func (w *Worker) storeResults(ctx context.Context, req Request, hits []models.Hit) error {
	if req.Infernal {
		infernalID, err := w.store.SetInfernalJobStatus(ctx, req.JobID, models.ChunkStatusStarted)
		if err != nil {
			return err
		}
		inf, err := w.store.GetInfernalJobByID(ctx, infernalID)
		if err != nil {
			return err
		}
		if models.IsTerminalChunkStatus(inf.Status) {
			slog.Warn("worker: unit already completed, dropping results", "job_id", req.JobID)
			return nil
		}
		return w.store.InsertInfernalResults(ctx, infernalID, hits)
	}

	chunkID, err := w.store.SetJobChunkStatus(ctx, req.JobID, req.Database, models.ChunkStatusStarted)
	if err != nil {
		return err
	}
	chunk, err := w.store.GetJobChunkByID(ctx, chunkID)
	if err != nil {
		return err
	}
	if models.IsTerminalChunkStatus(chunk.Status) {
		slog.Warn("worker: unit already completed, dropping results",
			"job_id", req.JobID, "database", req.Database)
		return nil
	}
	return w.store.InsertChunkResults(ctx, chunkID, hits)
}

// finish records the unit's terminal status and recomputes the parent
// job's aggregate status. A not-found from the setter means a stale or
// duplicate delegation; it is logged and otherwise ignored.
func (w *Worker) finish(ctx context.Context, req Request, status string) {
	var err error
	if req.Infernal {
		_, err = w.store.SetInfernalJobStatus(ctx, req.JobID, status)
	} else {
		_, err = w.store.SetJobChunkStatus(ctx, req.JobID, req.Database, status)
	}
	if err != nil {
		slog.Error("worker: cannot set unit status",
			"job_id", req.JobID, "database", req.Database, "status", status, "error", err)
		return
	}

	if _, err := w.store.UpdateJobStatusFromChildren(ctx, req.JobID); err != nil {
		slog.Error("worker: cannot recompute job status", "job_id", req.JobID, "error", err)
	}
}
