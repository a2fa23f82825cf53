package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through
// here. The store is the single source of truth: there are no cross-entity
// transactions, so callers must tolerate partial application and rely on
// the idempotent status setters for recovery.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SetJobHitCount(ctx context.Context, id uuid.UUID, count int) error
	PurgeJob(ctx context.Context, id uuid.UUID) error
	UpdateJobStatusFromChildren(ctx context.Context, jobID uuid.UUID) (string, error)

	CreateJobChunk(ctx context.Context, chunk *models.JobChunk) error
	GetJobChunks(ctx context.Context, jobID uuid.UUID) ([]*models.JobChunk, error)
	GetJobChunkByID(ctx context.Context, id uuid.UUID) (*models.JobChunk, error)
	SetJobChunkStatus(ctx context.Context, jobID uuid.UUID, database, status string, opts ...UnitUpdateOption) (uuid.UUID, error)

	CreateInfernalJob(ctx context.Context, job *models.InfernalJob) error
	GetInfernalJob(ctx context.Context, jobID uuid.UUID) (*models.InfernalJob, error)
	GetInfernalJobByID(ctx context.Context, id uuid.UUID) (*models.InfernalJob, error)
	SetInfernalJobStatus(ctx context.Context, jobID uuid.UUID, status string, opts ...UnitUpdateOption) (uuid.UUID, error)

	PromoteCreatedUnits(ctx context.Context, jobID uuid.UUID) error
	FindHighestPriorityWork(ctx context.Context) ([]*models.WorkUnit, error)

	UpsertConsumer(ctx context.Context, ip string, port int) error
	FindConsumersByStatus(ctx context.Context, status string) ([]*models.Consumer, error)
	MarkConsumerBusy(ctx context.Context, ip string, ref models.WorkRef) error
	ReleaseConsumer(ctx context.Context, ip string) error

	InsertChunkResults(ctx context.Context, chunkID uuid.UUID, hits []models.Hit) error
	InsertInfernalResults(ctx context.Context, infernalID uuid.UUID, hits []models.Hit) error
	GetJobResults(ctx context.Context, jobID uuid.UUID) ([]models.Hit, error)
}

type unitUpdateParams struct {
	Consumer *string
}

// UnitUpdateOption customizes a chunk/infernal-job status update.
type UnitUpdateOption func(*unitUpdateParams)

// WithConsumer records the consumer a unit was delegated to. Only
// meaningful together with the started status; terminal statuses always
// clear the reference.
func WithConsumer(ip string) UnitUpdateOption {
	return func(p *unitUpdateParams) {
		p.Consumer = &ip
	}
}
