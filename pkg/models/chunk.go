package models

import (
	"time"

	"github.com/google/uuid"
)

// Chunk lifecycle: created -> pending -> started -> {success, error, timeout}.
//
// created exists only while the sibling batch for a job is being written,
// so a scheduler tick cannot pick up a half-created job. It is promoted to
// pending as soon as the batch is complete.
const (
	ChunkStatusCreated = "created"
	ChunkStatusPending = "pending"
	ChunkStatusStarted = "started"
	ChunkStatusSuccess = "success"
	ChunkStatusError   = "error"
	ChunkStatusTimeout = "timeout"
)

// IsTerminalChunkStatus reports whether a chunk/infernal-job status is final.
func IsTerminalChunkStatus(status string) bool {
	switch status {
	case ChunkStatusSuccess, ChunkStatusError, ChunkStatusTimeout:
		return true
	}
	return false
}

// JobChunk is the portion of a job searched against one target database.
// At most one chunk exists per (job, database) pair. The consumer reference
// is set only while the chunk is started and cleared on completion.
type JobChunk struct {
	ID        uuid.UUID  `db:"id"        json:"id"`
	JobID     uuid.UUID  `db:"job_id"    json:"job_id"`
	Database  string     `db:"database"  json:"database"`
	Status    string     `db:"status"    json:"status"`
	Consumer  *string    `db:"consumer"  json:"consumer,omitempty"`
	Submitted *time.Time `db:"submitted" json:"submitted,omitempty"`
	Finished  *time.Time `db:"finished"  json:"finished,omitempty"`
}

// InfernalJob is the whole-sequence structural search of a job, not
// partitioned by database. One per job, same lifecycle as a chunk.
type InfernalJob struct {
	ID        uuid.UUID  `db:"id"        json:"id"`
	JobID     uuid.UUID  `db:"job_id"    json:"job_id"`
	Status    string     `db:"status"    json:"status"`
	Priority  string     `db:"priority"  json:"priority"`
	Consumer  *string    `db:"consumer"  json:"consumer,omitempty"`
	Submitted *time.Time `db:"submitted" json:"submitted,omitempty"`
	Finished  *time.Time `db:"finished"  json:"finished,omitempty"`
}

// WorkUnit is one schedulable piece of pending work: either a job chunk
// bound to a target database, or a job's infernal search. Units are tagged
// with the parent job's priority and submission time for ordering.
type WorkUnit struct {
	Kind      WorkKind
	UnitID    uuid.UUID // chunk id or infernal job id
	JobID     uuid.UUID
	Database  string // empty for infernal units
	Query     string
	Priority  string
	Submitted time.Time
}

// Ref returns the work reference a consumer holds while running this unit.
func (u *WorkUnit) Ref() WorkRef {
	if u.Kind == WorkInfernal {
		return InfernalWork(u.UnitID)
	}
	return ChunkWork(u.UnitID)
}
