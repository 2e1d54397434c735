package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures list parameters. Visibility fields are combined with AND.
type TicketFilter struct {
	CreatorID *string
	// AssignableTo restricts to tickets that are unassigned or assigned to this actor.
	AssignableTo *string
	AssigneeID   *string
	Branches     []string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	// BreachedAt restricts to open tickets whose SLA due time is before this instant.
	BreachedAt *time.Time
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket only while the stored status still equals from. It returns
	// ErrStaleState when another writer moved the ticket first.
	Update(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error
	// MarkConverted moves a non-terminal ticket to converted_to_incident. It returns
	// ErrStaleState when the ticket is already terminal.
	MarkConverted(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, branch, category, title, description, priority, status, creator_id,
               assignee_id, affected_system, sla_due_at, resolved_at, closed_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, branch, category, title, description, priority, status, creator_id,
            assignee_id, affected_system, sla_due_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
        RETURNING id`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Number,
		ticket.Branch,
		ticket.Category,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.AffectedSystem,
		ticket.SLADueAt,
		ticket.CreatedAt,
	).Scan(&ticket.ID)
	if err != nil {
		return translate(err)
	}
	ticket.UpdatedAt = ticket.CreatedAt
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET category=$1, title=$2, description=$3, priority=$4, status=$5, assignee_id=$6,
            affected_system=$7, sla_due_at=$8, resolved_at=$9, closed_at=$10, updated_at=$11
        WHERE id=$12 AND status=$13`
	q := conn(ctx, r.pool)
	cmd, err := q.Exec(ctx, query,
		ticket.Category,
		ticket.Title,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.AffectedSystem,
		ticket.SLADueAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
		from,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return translate(err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleState
	}
	return nil
}

func (r *ticketRepository) MarkConverted(ctx context.Context, id string) error {
	const query = `
        UPDATE tickets SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status NOT IN ($3, $1)`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		domain.TicketStatusConvertedToIncident,
		id,
		domain.TicketStatusClosed,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if filter.AssignableTo != nil {
		args = append(args, *filter.AssignableTo)
		clauses = append(clauses, fmt.Sprintf("(assignee_id IS NULL OR assignee_id=$%d)", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Branches) > 0 {
		args = append(args, filter.Branches)
		clauses = append(clauses, fmt.Sprintf("branch = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.BreachedAt != nil {
		args = append(args, *filter.BreachedAt)
		clauses = append(clauses, fmt.Sprintf(
			"sla_due_at IS NOT NULL AND sla_due_at < $%d AND status NOT IN ('resolved','closed','converted_to_incident')", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Branch,
		&ticket.Category,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.AffectedSystem,
		&ticket.SLADueAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
