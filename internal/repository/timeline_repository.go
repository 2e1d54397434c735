package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TimelineRepository stores incident timeline entries. Entries are append-only.
type TimelineRepository interface {
	Create(ctx context.Context, entry *domain.TimelineEntry) error
	// AppendOpen records entry only while its incident is not closed. It returns
	// ErrStaleState for a closed incident and ErrNotFound for a missing one.
	AppendOpen(ctx context.Context, entry *domain.TimelineEntry) error
	ListByIncident(ctx context.Context, incidentID string, includeInternal bool) ([]domain.TimelineEntry, error)
}

type timelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository builds repository.
func NewTimelineRepository(pool *pgxpool.Pool) TimelineRepository {
	return &timelineRepository{pool: pool}
}

func (r *timelineRepository) Create(ctx context.Context, entry *domain.TimelineEntry) error {
	const query = `
        INSERT INTO timeline_entries (incident_id, author_id, action, description, internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return translate(conn(ctx, r.pool).QueryRow(ctx, query,
		entry.IncidentID,
		entry.AuthorID,
		entry.Action,
		entry.Description,
		entry.Internal,
		entry.CreatedAt,
	).Scan(&entry.ID))
}

func (r *timelineRepository) AppendOpen(ctx context.Context, entry *domain.TimelineEntry) error {
	const query = `
        INSERT INTO timeline_entries (incident_id, author_id, action, description, internal, created_at)
        SELECT id, $2, $3, $4, $5, $6 FROM incidents WHERE id=$1 AND status <> 'closed'
        RETURNING id`
	q := conn(ctx, r.pool)
	err := q.QueryRow(ctx, query,
		entry.IncidentID,
		entry.AuthorID,
		entry.Action,
		entry.Description,
		entry.Internal,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if !errors.Is(err, pgx.ErrNoRows) {
		return translate(err)
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id=$1)`, entry.IncidentID).Scan(&exists); err != nil {
		return translate(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleState
}

func (r *timelineRepository) ListByIncident(ctx context.Context, incidentID string, includeInternal bool) ([]domain.TimelineEntry, error) {
	const query = `
        SELECT id, incident_id, author_id, action, description, internal, created_at
        FROM timeline_entries WHERE incident_id=$1 AND ($2 OR NOT internal)
        ORDER BY created_at ASC, seq ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, incidentID, includeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimelineEntry
	for rows.Next() {
		var entry domain.TimelineEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.IncidentID,
			&entry.AuthorID,
			&entry.Action,
			&entry.Description,
			&entry.Internal,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
