package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SLARuleRepository manages SLA rules. At most one active rule exists per priority;
// Create and Update return ErrDuplicateActiveRule otherwise.
type SLARuleRepository interface {
	Create(ctx context.Context, rule *domain.SLARule) error
	Update(ctx context.Context, rule *domain.SLARule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLARule, error)
	ActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLARule, error)
	List(ctx context.Context) ([]domain.SLARule, error)
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository builds the repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

const slaRuleColumns = `id, priority, response_minutes, resolution_hours, is_active, created_at, updated_at`

func (r *slaRuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        INSERT INTO sla_rules (priority, response_minutes, resolution_hours, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$5)
        RETURNING id`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		rule.Priority,
		rule.ResponseMinutes,
		rule.ResolutionHours,
		rule.Active,
		rule.CreatedAt,
	).Scan(&rule.ID)
	if err != nil {
		return translate(err)
	}
	rule.UpdatedAt = rule.CreatedAt
	return nil
}

func (r *slaRuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        UPDATE sla_rules SET priority=$1, response_minutes=$2, resolution_hours=$3, is_active=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		rule.Priority,
		rule.ResponseMinutes,
		rule.ResolutionHours,
		rule.Active,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM sla_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaRuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE id=$1`
	rule, err := scanSLARule(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return rule, nil
}

func (r *slaRuleRepository) ActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules WHERE priority=$1 AND is_active`
	rule, err := scanSLARule(conn(ctx, r.pool).QueryRow(ctx, query, priority))
	if err != nil {
		return nil, translate(err)
	}
	return rule, nil
}

func (r *slaRuleRepository) List(ctx context.Context) ([]domain.SLARule, error) {
	query := `SELECT ` + slaRuleColumns + ` FROM sla_rules ORDER BY priority ASC, created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		rule, err := scanSLARule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func scanSLARule(row pgx.Row) (*domain.SLARule, error) {
	var rule domain.SLARule
	if err := row.Scan(
		&rule.ID,
		&rule.Priority,
		&rule.ResponseMinutes,
		&rule.ResolutionHours,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}
