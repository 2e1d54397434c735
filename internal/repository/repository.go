package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateNumber reports a sequence number collision on insert.
	ErrDuplicateNumber = errors.New("duplicate sequence number")
	// ErrDuplicateSource reports a second incident referencing the same source ticket.
	ErrDuplicateSource = errors.New("ticket already has an incident")
	// ErrDuplicateActiveRule reports a second active SLA rule for a priority.
	ErrDuplicateActiveRule = errors.New("active sla rule already exists for priority")
	// ErrDuplicateAdministrator reports a second administrator actor.
	ErrDuplicateAdministrator = errors.New("administrator already exists")
	// ErrStaleState reports a conditional write that matched no row in the expected state.
	ErrStaleState = errors.New("record is no longer in the expected state")
)

const (
	uniqueViolation = "23505"

	constraintTicketNumber   = "tickets_number_key"
	constraintIncidentNumber = "incidents_number_key"
	constraintIncidentSource = "incidents_source_ticket_id_key"
	constraintActiveSLARule  = "sla_rules_active_priority_idx"
	constraintSingleAdmin    = "actors_single_admin_idx"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// conn returns the transaction bound to ctx, falling back to the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Transactor runs a function inside a single store transaction. Repositories called with the
// context passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor builds a Transactor over a pgx pool.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintTicketNumber, constraintIncidentNumber:
			return ErrDuplicateNumber
		case constraintIncidentSource:
			return ErrDuplicateSource
		case constraintActiveSLARule:
			return ErrDuplicateActiveRule
		case constraintSingleAdmin:
			return ErrDuplicateAdministrator
		}
	}
	return err
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
