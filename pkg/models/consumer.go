package models

import "github.com/google/uuid"

const (
	ConsumerAvailable = "available"
	ConsumerBusy      = "busy"
)

// WorkKind tags the kind of work a consumer holds.
type WorkKind int

const (
	WorkIdle WorkKind = iota
	WorkChunk
	WorkInfernal
)

// WorkRef identifies the unit of work a consumer currently holds. It is a
// tagged union: idle, running a job chunk, or running an infernal job.
type WorkRef struct {
	Kind     WorkKind
	ChunkID  uuid.UUID // valid when Kind == WorkChunk
	JobID    uuid.UUID // infernal job id, valid when Kind == WorkInfernal
}

// Idle returns the empty work reference.
func Idle() WorkRef { return WorkRef{Kind: WorkIdle} }

// ChunkWork returns a reference to a running job chunk.
func ChunkWork(chunkID uuid.UUID) WorkRef {
	return WorkRef{Kind: WorkChunk, ChunkID: chunkID}
}

// InfernalWork returns a reference to a running infernal job.
func InfernalWork(infernalID uuid.UUID) WorkRef {
	return WorkRef{Kind: WorkInfernal, JobID: infernalID}
}

// IsIdle reports whether the reference points at no work.
func (r WorkRef) IsIdle() bool { return r.Kind == WorkIdle }

// Consumer is one worker process, keyed by its network address. A consumer
// holds at most one unit of work at a time. A busy consumer with an idle
// work reference is orphaned and must be reclaimed.
type Consumer struct {
	IP     string  `db:"ip"     json:"ip"`
	Port   int     `db:"port"   json:"port"`
	Status string  `db:"status" json:"status"`
	Work   WorkRef `db:"-"      json:"-"`
}

// Addr returns the host the producer delegates to.
func (c *Consumer) Addr() string { return c.IP }
