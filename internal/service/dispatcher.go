package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Recipient is one notification addressed to a single actor. ResourceType and ResourceID,
// when set, point this notification at a different resource than the mutation's.
type Recipient struct {
	UserID       string
	Type         domain.NotificationType
	Title        string
	Message      string
	ResourceType domain.ResourceType
	ResourceID   string
}

func (r Recipient) resource(m Mutation) (domain.ResourceType, string) {
	if r.ResourceID == "" {
		return m.ResourceType, m.ResourceID
	}
	return r.ResourceType, r.ResourceID
}

// RoleBroadcast addresses every active actor holding one of Roles, minus Exclude.
type RoleBroadcast struct {
	Roles   []domain.Role
	Exclude []string
	Type    domain.NotificationType
	Title   string
	Message string
}

// Mutation describes one recorded state change and the side effects it owes.
type Mutation struct {
	ActorID      string
	Action       string
	ResourceType domain.ResourceType
	ResourceID   string
	Details      map[string]any
	Event        events.EventType
	Notify       []Recipient
	Broadcast    *RoleBroadcast
}

// Dispatcher writes the audit entry and notifications for a mutation. Every write is best-effort:
// failures are logged and counted, never returned.
type Dispatcher struct {
	audit         repository.AuditRepository
	notifications repository.NotificationRepository
	actors        repository.ActorRepository
	events        events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// DispatcherDependencies bundles collaborators for the dispatcher.
type DispatcherDependencies struct {
	AuditRepo        repository.AuditRepository
	NotificationRepo repository.NotificationRepository
	ActorRepo        repository.ActorRepository
	Events           events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            func() time.Time
}

// NewDispatcher constructs the side-effect sink.
func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		audit:         deps.AuditRepo,
		notifications: deps.NotificationRepo,
		actors:        deps.ActorRepo,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        logger,
		now:           clockOrDefault(deps.Clock),
	}
}

// OnMutation records exactly one audit entry for m, then its notifications, then publishes events.
// It runs detached from the caller's cancellation so a finished mutation always gets its record.
func (d *Dispatcher) OnMutation(ctx context.Context, m Mutation) {
	ctx = context.WithoutCancel(ctx)
	now := d.now()
	actorID := m.ActorID
	if actorID == "" {
		actorID = domain.SystemActorID
	}

	entry := &domain.AuditLogEntry{
		ID:           uuid.NewString(),
		ActorID:      actorID,
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Details:      m.Details,
		CreatedAt:    now,
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		d.logger.Error("audit write failed",
			zap.String("concern", "audit"),
			zap.String("action", m.Action),
			zap.String("resource_id", m.ResourceID),
			zap.Error(err))
		d.metrics.RecordSideEffectFailure("audit")
	}

	for _, r := range d.recipients(ctx, m) {
		resourceType, resourceID := r.resource(m)
		n := domain.Notification{
			ID:           uuid.NewString(),
			UserID:       r.UserID,
			Type:         r.Type,
			Title:        r.Title,
			Message:      r.Message,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			CreatedAt:    now,
		}
		if err := d.notifications.Create(ctx, &n); err != nil {
			d.logger.Error("notification write failed",
				zap.String("concern", "notification"),
				zap.String("user_id", r.UserID),
				zap.String("resource_id", resourceID),
				zap.Error(err))
			d.metrics.RecordSideEffectFailure("notification")
			continue
		}
		d.publish(ctx, events.Event{
			Type:         events.EventNotificationCreated,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			ActorID:      actorID,
			Timestamp:    now,
			Payload:      events.NotificationCreatedPayload{Notification: n},
		})
	}

	if m.Event != "" {
		d.publish(ctx, events.Event{
			Type:         m.Event,
			ResourceType: m.ResourceType,
			ResourceID:   m.ResourceID,
			ActorID:      actorID,
			Timestamp:    now,
			Payload:      events.MutationPayload{Action: m.Action, Details: m.Details},
		})
	}
}

// recipients flattens direct and role-addressed notifications. Each actor is notified at most once,
// and the actor who performed the mutation is never notified about it.
func (d *Dispatcher) recipients(ctx context.Context, m Mutation) []Recipient {
	seen := map[string]bool{"": true, m.ActorID: true}
	var out []Recipient
	for _, r := range m.Notify {
		if seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		out = append(out, r)
	}

	if b := m.Broadcast; b != nil && d.actors != nil {
		for _, id := range b.Exclude {
			seen[id] = true
		}
		actors, err := d.actors.ListActiveByRoles(ctx, b.Roles...)
		if err != nil {
			d.logger.Error("notification recipients lookup failed",
				zap.String("concern", "notification"),
				zap.String("resource_id", m.ResourceID),
				zap.Error(err))
			d.metrics.RecordSideEffectFailure("notification")
			return out
		}
		for _, a := range actors {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, Recipient{UserID: a.ID, Type: b.Type, Title: b.Title, Message: b.Message})
		}
	}
	return out
}

func (d *Dispatcher) publish(ctx context.Context, event events.Event) {
	if d.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = d.events.Publish(ctx, event)
}
