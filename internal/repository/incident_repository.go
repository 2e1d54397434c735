package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// IncidentFilter captures list parameters.
type IncidentFilter struct {
	AffectedUserID *string
	AssigneeID     *string
	Branch         *string
	Statuses       []domain.IncidentStatus
	Severities     []domain.Severity
	Limit          int
	Offset         int
}

// IncidentRepository encapsulates incident persistence.
type IncidentRepository interface {
	// Create returns ErrDuplicateNumber or ErrDuplicateSource on uniqueness violations.
	Create(ctx context.Context, incident *domain.Incident) error
	// Update writes incident only while it is open and its stored status still equals from.
	// It returns ErrStaleState otherwise.
	Update(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
	GetBySourceTicket(ctx context.Context, ticketID string) (*domain.Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
}

type incidentRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentRepository instantiates repository.
func NewIncidentRepository(pool *pgxpool.Pool) IncidentRepository {
	return &incidentRepository{pool: pool}
}

const incidentColumns = `id, number, branch, category, title, description, severity, status, detection_method,
               confidentiality_impact, integrity_impact, availability_impact, source_ticket_id, creator_id,
               assignee_id, affected_asset, affected_user_id, root_cause, resolution_summary,
               triaged_at, contained_at, recovered_at, closed_at, created_at, updated_at`

func (r *incidentRepository) Create(ctx context.Context, incident *domain.Incident) error {
	const query = `
        INSERT INTO incidents (number, branch, category, title, description, severity, status, detection_method,
            confidentiality_impact, integrity_impact, availability_impact, source_ticket_id, creator_id,
            assignee_id, affected_asset, affected_user_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)
        RETURNING id`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		incident.Number,
		incident.Branch,
		incident.Category,
		incident.Title,
		incident.Description,
		incident.Severity,
		incident.Status,
		incident.DetectionMethod,
		incident.ConfidentialityImpact,
		incident.IntegrityImpact,
		incident.AvailabilityImpact,
		incident.SourceTicketID,
		incident.CreatorID,
		incident.AssigneeID,
		incident.AffectedAsset,
		incident.AffectedUserID,
		incident.CreatedAt,
	).Scan(&incident.ID)
	if err != nil {
		return translate(err)
	}
	incident.UpdatedAt = incident.CreatedAt
	return nil
}

func (r *incidentRepository) Update(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error {
	const query = `
        UPDATE incidents SET category=$1, title=$2, description=$3, severity=$4, status=$5,
            confidentiality_impact=$6, integrity_impact=$7, availability_impact=$8, assignee_id=$9,
            root_cause=$10, resolution_summary=$11, triaged_at=$12, contained_at=$13, recovered_at=$14,
            closed_at=$15, updated_at=$16
        WHERE id=$17 AND status=$18 AND status <> 'closed'`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		incident.Category,
		incident.Title,
		incident.Description,
		incident.Severity,
		incident.Status,
		incident.ConfidentialityImpact,
		incident.IntegrityImpact,
		incident.AvailabilityImpact,
		incident.AssigneeID,
		incident.RootCause,
		incident.ResolutionSummary,
		incident.TriagedAt,
		incident.ContainedAt,
		incident.RecoveredAt,
		incident.ClosedAt,
		incident.UpdatedAt,
		incident.ID,
		from,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id=$1`
	incident, err := scanIncident(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return incident, nil
}

func (r *incidentRepository) GetBySourceTicket(ctx context.Context, ticketID string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE source_ticket_id=$1`
	incident, err := scanIncident(conn(ctx, r.pool).QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, translate(err)
	}
	return incident, nil
}

func (r *incidentRepository) List(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AffectedUserID != nil {
		args = append(args, *filter.AffectedUserID)
		clauses = append(clauses, fmt.Sprintf("affected_user_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Branch != nil {
		args = append(args, *filter.Branch)
		clauses = append(clauses, fmt.Sprintf("branch=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, sev := range filter.Severities {
			args = append(args, sev)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM incidents WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		incidentColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *incident)
	}
	return result, rows.Err()
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	if err := row.Scan(
		&incident.ID,
		&incident.Number,
		&incident.Branch,
		&incident.Category,
		&incident.Title,
		&incident.Description,
		&incident.Severity,
		&incident.Status,
		&incident.DetectionMethod,
		&incident.ConfidentialityImpact,
		&incident.IntegrityImpact,
		&incident.AvailabilityImpact,
		&incident.SourceTicketID,
		&incident.CreatorID,
		&incident.AssigneeID,
		&incident.AffectedAsset,
		&incident.AffectedUserID,
		&incident.RootCause,
		&incident.ResolutionSummary,
		&incident.TriagedAt,
		&incident.ContainedAt,
		&incident.RecoveredAt,
		&incident.ClosedAt,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &incident, nil
}
