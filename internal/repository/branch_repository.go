package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Branch is an organizational scope tag.
type Branch struct {
	Acronym string
	Name    string
	Active  bool
}

// BranchRepository manages branch reference data.
type BranchRepository interface {
	// Upsert creates or reactivates a branch.
	Upsert(ctx context.Context, branch Branch) error
	ListActive(ctx context.Context) ([]Branch, error)
}

type branchRepository struct {
	pool *pgxpool.Pool
}

// NewBranchRepository builds the repository.
func NewBranchRepository(pool *pgxpool.Pool) BranchRepository {
	return &branchRepository{pool: pool}
}

func (r *branchRepository) Upsert(ctx context.Context, branch Branch) error {
	const query = `
        INSERT INTO branches (acronym, name, is_active)
        VALUES ($1,$2,$3)
        ON CONFLICT (acronym) DO UPDATE SET name=EXCLUDED.name, is_active=EXCLUDED.is_active`
	_, err := conn(ctx, r.pool).Exec(ctx, query, branch.Acronym, branch.Name, branch.Active)
	return err
}

func (r *branchRepository) ListActive(ctx context.Context) ([]Branch, error) {
	const query = `SELECT acronym, name, is_active FROM branches WHERE is_active ORDER BY acronym ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Branch
	for rows.Next() {
		var branch Branch
		if err := rows.Scan(&branch.Acronym, &branch.Name, &branch.Active); err != nil {
			return nil, err
		}
		result = append(result, branch)
	}
	return result, rows.Err()
}
