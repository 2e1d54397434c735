package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ActorRepository handles persistence for actors.
type ActorRepository interface {
	Create(ctx context.Context, actor *domain.Actor) error
	Update(ctx context.Context, actor *domain.Actor) error
	GetByID(ctx context.Context, id string) (*domain.Actor, error)
	List(ctx context.Context, filter ActorFilter) ([]domain.Actor, error)
	// OldestActive returns the longest-tenured active actor of role allowed in branch.
	OldestActive(ctx context.Context, role domain.Role, branch string) (*domain.Actor, error)
	ListActiveByRoles(ctx context.Context, roles ...domain.Role) ([]domain.Actor, error)
	CountByRole(ctx context.Context, role domain.Role) (int, error)
}

// ActorFilter defines query params for actor listing.
type ActorFilter struct {
	Role   *domain.Role
	Status *domain.ActorStatus
	Limit  int
	Offset int
}

type actorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository instantiates the repository.
func NewActorRepository(pool *pgxpool.Pool) ActorRepository {
	return &actorRepository{pool: pool}
}

const actorColumns = `id, name, email, role, status, branches, created_at, updated_at`

func (r *actorRepository) Create(ctx context.Context, actor *domain.Actor) error {
	const query = `
        INSERT INTO actors (name, email, role, status, branches)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		actor.Name,
		actor.Email,
		actor.Role,
		actor.Status,
		branchesOrEmpty(actor.Branches),
	).Scan(&actor.ID, &actor.CreatedAt, &actor.UpdatedAt)
	return translate(err)
}

func (r *actorRepository) Update(ctx context.Context, actor *domain.Actor) error {
	const query = `
        UPDATE actors
        SET name=$1, email=$2, role=$3, status=$4, branches=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		actor.Name,
		actor.Email,
		actor.Role,
		actor.Status,
		branchesOrEmpty(actor.Branches),
		actor.ID,
	).Scan(&actor.UpdatedAt)
	return translate(err)
}

func (r *actorRepository) GetByID(ctx context.Context, id string) (*domain.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id=$1`
	actor, err := scanActor(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return actor, nil
}

func (r *actorRepository) List(ctx context.Context, filter ActorFilter) ([]domain.Actor, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM actors WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		actorColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActors(rows)
}

func (r *actorRepository) OldestActive(ctx context.Context, role domain.Role, branch string) (*domain.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors
        WHERE role=$1 AND status='active' AND (cardinality(branches)=0 OR $2='' OR $2=ANY(branches))
        ORDER BY created_at ASC, id ASC LIMIT 1`
	actor, err := scanActor(conn(ctx, r.pool).QueryRow(ctx, query, role, branch))
	if err != nil {
		return nil, translate(err)
	}
	return actor, nil
}

func (r *actorRepository) ListActiveByRoles(ctx context.Context, roles ...domain.Role) ([]domain.Actor, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	query := `SELECT ` + actorColumns + ` FROM actors WHERE status='active' AND role = ANY($1) ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActors(rows)
}

func (r *actorRepository) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM actors WHERE role=$1`, role).Scan(&count)
	return count, err
}

func scanActor(row pgx.Row) (*domain.Actor, error) {
	var actor domain.Actor
	if err := row.Scan(
		&actor.ID,
		&actor.Name,
		&actor.Email,
		&actor.Role,
		&actor.Status,
		&actor.Branches,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &actor, nil
}

func scanActors(rows pgx.Rows) ([]domain.Actor, error) {
	var result []domain.Actor
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *actor)
	}
	return result, rows.Err()
}

func branchesOrEmpty(branches []string) []string {
	if branches == nil {
		return []string{}
	}
	return branches
}
