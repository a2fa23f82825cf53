package models

import "github.com/google/uuid"

// Result ordering keys accepted by the results endpoint.
const (
	OrderingEValue   = "e_value"
	OrderingScore    = "score"
	OrderingBias     = "bias"
	OrderingCoverage = "coverage"
)

// ValidOrdering reports whether key is a known result ordering.
func ValidOrdering(key string) bool {
	switch key {
	case OrderingEValue, OrderingScore, OrderingBias, OrderingCoverage:
		return true
	}
	return false
}

// Hit is one alignment match reported by a search tool run. Hits are
// written in bulk when a chunk finishes and are immutable afterwards.
type Hit struct {
	ID        int64   `db:"id"        json:"-"`
	TargetID  string  `db:"target_id" json:"target_id"`
	Species   string  `db:"species"   json:"species"`
	Score     float64 `db:"score"     json:"score"`
	Bias      float64 `db:"bias"      json:"bias"`
	EValue    float64 `db:"e_value"   json:"e_value"`
	Coverage  float64 `db:"coverage"  json:"coverage"`
	Alignment string  `db:"alignment" json:"alignment"`
	Ordinal   int     `db:"ordinal"   json:"ordinal"`
}

// ChunkResult is a hit produced by a job chunk's database search.
type ChunkResult struct {
	Hit
	ChunkID uuid.UUID `db:"chunk_id" json:"chunk_id"`
}

// InfernalResult is a hit produced by a job's structural search.
type InfernalResult struct {
	Hit
	InfernalJobID uuid.UUID `db:"infernal_job_id" json:"infernal_job_id"`
}
