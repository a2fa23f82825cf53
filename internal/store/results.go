package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

var resultColumns = []string{
	"target_id", "species", "score", "bias", "e_value", "coverage", "alignment", "ordinal",
}

// InsertChunkResults bulk-inserts the hits reported by a finished chunk.
// Rows are immutable once written.
func (s *PostgresStore) InsertChunkResults(ctx context.Context, chunkID uuid.UUID, hits []models.Hit) error {
	if len(hits) == 0 {
		return nil
	}
	cols := append([]string{"chunk_id"}, resultColumns...)
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"job_chunk_results"},
		cols,
		pgx.CopyFromSlice(len(hits), func(i int) ([]any, error) {
			h := hits[i]
			return []any{chunkID, h.TargetID, h.Species, h.Score, h.Bias, h.EValue, h.Coverage, h.Alignment, h.Ordinal}, nil
		}))
	if err != nil {
		return fmt.Errorf("insert chunk results: %w", err)
	}
	return nil
}

// InsertInfernalResults bulk-inserts the hits reported by a finished
// infernal job.
func (s *PostgresStore) InsertInfernalResults(ctx context.Context, infernalID uuid.UUID, hits []models.Hit) error {
	if len(hits) == 0 {
		return nil
	}
	cols := append([]string{"infernal_job_id"}, resultColumns...)
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"infernal_results"},
		cols,
		pgx.CopyFromSlice(len(hits), func(i int) ([]any, error) {
			h := hits[i]
			return []any{infernalID, h.TargetID, h.Species, h.Score, h.Bias, h.EValue, h.Coverage, h.Alignment, h.Ordinal}, nil
		}))
	if err != nil {
		return fmt.Errorf("insert infernal results: %w", err)
	}
	return nil
}

// GetJobResults returns every hit recorded for a job, across all of its
// chunks and its infernal job. Ordering is applied by the caller at read
// time.
func (s *PostgresStore) GetJobResults(ctx context.Context, jobID uuid.UUID) ([]models.Hit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.target_id, r.species, r.score, r.bias, r.e_value, r.coverage, r.alignment, r.ordinal
		 FROM job_chunk_results r JOIN job_chunks c ON c.id = r.chunk_id
		 WHERE c.job_id = $1
		 UNION ALL
		 SELECT r.id, r.target_id, r.species, r.score, r.bias, r.e_value, r.coverage, r.alignment, r.ordinal
		 FROM infernal_results r JOIN infernal_jobs i ON i.id = r.infernal_job_id
		 WHERE i.job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job results: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var h models.Hit
		if err := rows.Scan(&h.ID, &h.TargetID, &h.Species, &h.Score, &h.Bias, &h.EValue, &h.Coverage, &h.Alignment, &h.Ordinal); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	return hits, rows.Err()
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
