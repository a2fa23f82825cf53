package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusStarted        = "started"
	JobStatusSuccess        = "success"
	JobStatusError          = "error"
	JobStatusPartialSuccess = "partial_success"
)

const (
	PriorityHigh = "high"
	PriorityLow  = "low"
)

// Job is one user-submitted sequence search. Its status is always derived
// from the statuses of its chunks and infernal job, never set directly by
// callers (see DeriveJobStatus).
type Job struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	Query       string     `db:"query"        json:"query"`
	Description *string    `db:"description"  json:"description,omitempty"`
	Ordering    string     `db:"ordering"     json:"ordering"`
	Priority    string     `db:"priority"     json:"priority"`
	Status      string     `db:"status"       json:"status"`
	HitCount    *int       `db:"hit_count"    json:"hit_count,omitempty"`
	ResultInDB  bool       `db:"result_in_db" json:"result_in_db"`
	Submitted   time.Time  `db:"submitted"    json:"submitted"`
	Finished    *time.Time `db:"finished"     json:"finished,omitempty"`
}

// IsTerminalJobStatus reports whether a job status is final.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusSuccess, JobStatusError, JobStatusPartialSuccess:
		return true
	}
	return false
}

// DeriveJobStatus computes a job's aggregate status from its children's
// statuses (all chunks plus the infernal job):
//
//   - success when every child is success
//   - partial_success when every child is terminal and at least one is
//     error or timeout
//   - started while any child is still unfinished
//
// A job with no children stays started.
func DeriveJobStatus(children []string) string {
	if len(children) == 0 {
		return JobStatusStarted
	}

	allSuccess := true
	for _, st := range children {
		if !IsTerminalChunkStatus(st) {
			return JobStatusStarted
		}
		if st != ChunkStatusSuccess {
			allSuccess = false
		}
	}
	if allSuccess {
		return JobStatusSuccess
	}
	return JobStatusPartialSuccess
}
