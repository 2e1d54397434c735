package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ReconciliationRepository records conversions that stopped after the incident was persisted.
type ReconciliationRepository interface {
	Create(ctx context.Context, marker *domain.Reconciliation) error
	List(ctx context.Context, pendingOnly bool, limit int) ([]domain.Reconciliation, error)
	Resolve(ctx context.Context, id string, at time.Time) error
	// Abandon closes a pending marker that can never be completed and records reason.
	Abandon(ctx context.Context, id string, at time.Time, reason string) error
}

type reconciliationRepository struct {
	pool *pgxpool.Pool
}

// NewReconciliationRepository builds the repository.
func NewReconciliationRepository(pool *pgxpool.Pool) ReconciliationRepository {
	return &reconciliationRepository{pool: pool}
}

func (r *reconciliationRepository) Create(ctx context.Context, marker *domain.Reconciliation) error {
	const query = `
        INSERT INTO conversion_reconciliations (incident_id, ticket_id, failed_step, error, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		marker.IncidentID,
		marker.TicketID,
		marker.FailedStep,
		marker.Error,
		marker.CreatedAt,
	).Scan(&marker.ID)
}

func (r *reconciliationRepository) List(ctx context.Context, pendingOnly bool, limit int) ([]domain.Reconciliation, error) {
	limit, _ = pageBounds(limit, 0)
	const query = `
        SELECT id, incident_id, ticket_id, failed_step, error, created_at, resolved_at, abandoned
        FROM conversion_reconciliations WHERE (NOT $1 OR resolved_at IS NULL)
        ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, pendingOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reconciliation
	for rows.Next() {
		var marker domain.Reconciliation
		if err := rows.Scan(
			&marker.ID,
			&marker.IncidentID,
			&marker.TicketID,
			&marker.FailedStep,
			&marker.Error,
			&marker.CreatedAt,
			&marker.ResolvedAt,
			&marker.Abandoned,
		); err != nil {
			return nil, err
		}
		result = append(result, marker)
	}
	return result, rows.Err()
}

func (r *reconciliationRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE conversion_reconciliations SET resolved_at=$2 WHERE id=$1 AND resolved_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *reconciliationRepository) Abandon(ctx context.Context, id string, at time.Time, reason string) error {
	const query = `
        UPDATE conversion_reconciliations SET resolved_at=$2, abandoned=TRUE, error=$3
        WHERE id=$1 AND resolved_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
