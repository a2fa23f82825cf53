// Package jobs implements job submission and read-side queries: fanning a
// query out into one chunk per target database plus one infernal job, and
// assembling status and result views for the API.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/internal/config"
	"github.com/nucleohub/seqdispatch/internal/results"
	"github.com/nucleohub/seqdispatch/internal/store"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// Validation failures surfaced as 400s by the API layer.
var (
	ErrInvalidQuery    = errors.New("query is not a nucleotide sequence")
	ErrQueryLength     = errors.New("query length out of bounds")
	ErrUnknownDatabase = errors.New("unknown database")
	ErrUnknownOrdering = errors.New("unknown result ordering")
	ErrNoDatabases     = errors.New("at least one database is required")
)

// SubmitParams holds validated input for a job submission.
type SubmitParams struct {
	Query       string
	Databases   []string
	Description string
	Ordering    string
	Priority    string
}

// ChunkStatus is the per-unit portion of a job status view.
type ChunkStatus struct {
	Database    string  `json:"database"`
	Status      string  `json:"status"`
	ElapsedTime float64 `json:"elapsedTime"`
}

// JobStatus is the response body of the status endpoint.
type JobStatus struct {
	JobID       uuid.UUID     `json:"job_id"`
	Query       string        `json:"query"`
	Status      string        `json:"status"`
	Chunks      []ChunkStatus `json:"chunks"`
	Infernal    *ChunkStatus  `json:"infernal,omitempty"`
	ElapsedTime float64       `json:"elapsedTime"`
}

// Service wires the store and search configuration behind the producer API.
type Service struct {
	store  store.Store
	search config.SearchConfig
}

// NewService creates a job service.
func NewService(s store.Store, search config.SearchConfig) *Service {
	return &Service{store: s, search: search}
}

// Submit validates the query, creates the job row, fans out one chunk per
// database plus one infernal job in created status, then promotes the
// whole batch to pending so the scheduler can pick it up. There is no
// multi-row transaction: a crash mid-fanout leaves the unpromoted units in
// created status, invisible to the scheduler.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*models.Job, error) {
	query, err := s.normalizeQuery(p.Query)
	if err != nil {
		return nil, err
	}
	if len(p.Databases) == 0 {
		return nil, ErrNoDatabases
	}
	for _, db := range p.Databases {
		if !s.search.KnownDatabase(db) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, db)
		}
	}

	ordering := p.Ordering
	if ordering == "" {
		ordering = models.OrderingEValue
	}
	if !models.ValidOrdering(ordering) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrdering, ordering)
	}
	priority := p.Priority
	if priority != models.PriorityHigh {
		priority = models.PriorityLow
	}

	job := &models.Job{
		ID:        uuid.New(),
		Query:     query,
		Ordering:  ordering,
		Priority:  priority,
		Status:    models.JobStatusStarted,
		Submitted: time.Now().UTC(),
	}
	if p.Description != "" {
		job.Description = &p.Description
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	for _, db := range p.Databases {
		chunk := &models.JobChunk{
			ID:       uuid.New(),
			JobID:    job.ID,
			Database: db,
			Status:   models.ChunkStatusCreated,
		}
		if err := s.store.CreateJobChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("create chunk for %s: %w", db, err)
		}
	}

	infernal := &models.InfernalJob{
		ID:       uuid.New(),
		JobID:    job.ID,
		Status:   models.ChunkStatusCreated,
		Priority: priority,
	}
	if err := s.store.CreateInfernalJob(ctx, infernal); err != nil {
		return nil, fmt.Errorf("create infernal job: %w", err)
	}

	if err := s.store.PromoteCreatedUnits(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("promote units: %w", err)
	}

	slog.Info("job submitted",
		"job_id", job.ID, "databases", len(p.Databases), "priority", priority)
	return job, nil
}

// Status assembles the status view of a job, its chunks and its infernal
// job. Returns store.ErrNotFound for an unknown job.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.GetJobChunks(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	st := &JobStatus{
		JobID:       job.ID,
		Query:       job.Query,
		Status:      job.Status,
		Chunks:      make([]ChunkStatus, 0, len(chunks)),
		ElapsedTime: elapsed(&job.Submitted, job.Finished, now),
	}
	for _, c := range chunks {
		st.Chunks = append(st.Chunks, ChunkStatus{
			Database:    c.Database,
			Status:      c.Status,
			ElapsedTime: elapsed(c.Submitted, c.Finished, now),
		})
	}

	infernal, err := s.store.GetInfernalJob(ctx, jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if infernal != nil {
		st.Infernal = &ChunkStatus{
			Database:    "infernal",
			Status:      infernal.Status,
			ElapsedTime: elapsed(infernal.Submitted, infernal.Finished, now),
		}
	}
	return st, nil
}

// Results returns every hit recorded for a job sorted by the requested
// ordering key (falling back to the job's stored preference), and caches
// the hit count on the job row the first time a finished job is read.
func (s *Service) Results(ctx context.Context, jobID uuid.UUID, ordering string) ([]models.Hit, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if ordering == "" || !models.ValidOrdering(ordering) {
		ordering = job.Ordering
	}

	hits, err := s.store.GetJobResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results.Sort(hits, ordering)

	if models.IsTerminalJobStatus(job.Status) && job.HitCount == nil {
		if err := s.store.SetJobHitCount(ctx, jobID, len(hits)); err != nil {
			slog.Error("cannot cache hit count", "job_id", jobID, "error", err)
		}
	}
	return hits, nil
}

// Purge removes a job and all of its derived rows.
func (s *Service) Purge(ctx context.Context, jobID uuid.UUID) error {
	return s.store.PurgeJob(ctx, jobID)
}

// normalizeQuery strips whitespace and an optional FASTA header, uppercases
// the sequence and enforces the nucleotide alphabet and length bounds.
func (s *Service) normalizeQuery(raw string) (string, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], ">") {
		lines = lines[1:]
	}
	seq := strings.ToUpper(strings.Join(lines, ""))
	seq = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\r' {
			return -1
		}
		return r
	}, seq)

	if len(seq) < s.search.QueryMinLen || len(seq) > s.search.QueryMaxLen {
		return "", fmt.Errorf("%w: got %d, want [%d, %d]",
			ErrQueryLength, len(seq), s.search.QueryMinLen, s.search.QueryMaxLen)
	}
	for _, r := range seq {
		switch r {
		case 'A', 'C', 'G', 'T', 'U', 'N':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidQuery, r)
		}
	}
	return seq, nil
}

func elapsed(submitted, finished *time.Time, now time.Time) float64 {
	if submitted == nil {
		return 0
	}
	end := now
	if finished != nil {
		end = *finished
	}
	return end.Sub(*submitted).Seconds()
}
