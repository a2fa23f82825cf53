package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// UpsertConsumer registers a consumer as available, resetting any stale
// work reference. Re-registration after a worker restart is idempotent.
func (s *PostgresStore) UpsertConsumer(ctx context.Context, ip string, port int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO consumers (ip, port, status) VALUES ($1, $2, 'available')
		 ON CONFLICT (ip) DO UPDATE SET
		   port = EXCLUDED.port,
		   status = 'available',
		   job_chunk_id = NULL,
		   infernal_job_id = NULL`,
		ip, port)
	if err != nil {
		return fmt.Errorf("upsert consumer: %w", err)
	}
	return nil
}

// FindConsumersByStatus returns consumers in the given status, ordered by
// address for determinism.
func (s *PostgresStore) FindConsumersByStatus(ctx context.Context, status string) ([]*models.Consumer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ip, port, status, job_chunk_id, infernal_job_id
		 FROM consumers WHERE status = $1 ORDER BY ip`, status)
	if err != nil {
		return nil, fmt.Errorf("find consumers: %w", err)
	}
	defer rows.Close()

	var consumers []*models.Consumer
	for rows.Next() {
		var c models.Consumer
		var chunkID, infernalID *uuid.UUID
		if err := rows.Scan(&c.IP, &c.Port, &c.Status, &chunkID, &infernalID); err != nil {
			return nil, fmt.Errorf("scan consumer: %w", err)
		}
		switch {
		case chunkID != nil:
			c.Work = models.ChunkWork(*chunkID)
		case infernalID != nil:
			c.Work = models.InfernalWork(*infernalID)
		default:
			c.Work = models.Idle()
		}
		consumers = append(consumers, &c)
	}
	return consumers, rows.Err()
}

// MarkConsumerBusy records the unit a consumer accepted and flips it to
// busy in a single row update.
func (s *PostgresStore) MarkConsumerBusy(ctx context.Context, ip string, ref models.WorkRef) error {
	var chunkID, infernalID *uuid.UUID
	switch ref.Kind {
	case models.WorkChunk:
		chunkID = &ref.ChunkID
	case models.WorkInfernal:
		infernalID = &ref.JobID
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE consumers SET status = 'busy', job_chunk_id = $2, infernal_job_id = $3 WHERE ip = $1`,
		ip, chunkID, infernalID)
	if err != nil {
		return fmt.Errorf("mark consumer busy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseConsumer returns a consumer to the available pool and clears its
// work reference in a single row update.
func (s *PostgresStore) ReleaseConsumer(ctx context.Context, ip string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE consumers SET status = 'available', job_chunk_id = NULL, infernal_job_id = NULL WHERE ip = $1`,
		ip)
	if err != nil {
		return fmt.Errorf("release consumer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
