package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceRepository hands out per-scope counter values atomically.
type SequenceRepository interface {
	Next(ctx context.Context, scope string) (int64, error)
}

type sequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository builds the repository.
func NewSequenceRepository(pool *pgxpool.Pool) SequenceRepository {
	return &sequenceRepository{pool: pool}
}

func (r *sequenceRepository) Next(ctx context.Context, scope string) (int64, error) {
	const query = `
        INSERT INTO sequence_counters (scope, value) VALUES ($1, 1)
        ON CONFLICT (scope) DO UPDATE SET value = sequence_counters.value + 1
        RETURNING value`
	var value int64
	// Always on the pool: a rolled-back caller transaction must not hand the same value out again.
	if err := r.pool.QueryRow(ctx, query, scope).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
