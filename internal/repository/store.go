package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store groups every repository the services depend on. Tx is nil when the backing store has no
// transactions.
type Store struct {
	Actors          ActorRepository
	Branches        BranchRepository
	Tickets         TicketRepository
	Comments        CommentRepository
	Incidents       IncidentRepository
	Timeline        TimelineRepository
	SLARules        SLARuleRepository
	Audit           AuditRepository
	Notifications   NotificationRepository
	Sequences       SequenceRepository
	Attachments     AttachmentRepository
	Reconciliations ReconciliationRepository
	Tx              Transactor
}

// NewPostgresStore wires pgx implementations over pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Actors:          NewActorRepository(pool),
		Branches:        NewBranchRepository(pool),
		Tickets:         NewTicketRepository(pool),
		Comments:        NewCommentRepository(pool),
		Incidents:       NewIncidentRepository(pool),
		Timeline:        NewTimelineRepository(pool),
		SLARules:        NewSLARuleRepository(pool),
		Audit:           NewAuditRepository(pool),
		Notifications:   NewNotificationRepository(pool),
		Sequences:       NewSequenceRepository(pool),
		Attachments:     NewAttachmentRepository(pool),
		Reconciliations: NewReconciliationRepository(pool),
		Tx:              NewTransactor(pool),
	}
}
