package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// NotificationService serves an actor's notification inbox.
type NotificationService struct {
	notifications repository.NotificationRepository
	guard         *rbac.Guard
	now           func() time.Time
}

// NotificationDependencies bundles collaborators for the inbox.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	Guard            *rbac.Guard
	Clock            func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifications: deps.NotificationRepo,
		guard:         deps.Guard,
		now:           clockOrDefault(deps.Clock),
	}
}

// List returns the actor's own notifications, newest first.
func (n *NotificationService) List(ctx context.Context, actor *domain.Actor, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err := n.notifications.ListByUser(ctx, actor.ID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return items, nil
}

// MarkRead flips one notification to read. Marking an already-read notification is a no-op.
func (n *NotificationService) MarkRead(ctx context.Context, actor *domain.Actor, id string) (*domain.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	item, err := n.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("notification", id, err)
	}
	if !n.guard.Can(actor, rbac.ActionUpdate, rbac.Resource{Kind: rbac.KindNotification, OwnerID: item.UserID}) {
		return nil, apperrors.NewForbidden("not allowed to modify this notification")
	}
	if item.Read {
		return item, nil
	}
	now := n.now()
	if err := n.notifications.MarkRead(ctx, id, now); err != nil {
		return nil, storeError("notification", id, err)
	}
	item.Read = true
	item.ReadAt = &now
	return item, nil
}

// MarkAllRead marks every unread notification of the actor and returns how many changed.
func (n *NotificationService) MarkAllRead(ctx context.Context, actor *domain.Actor) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	count, err := n.notifications.MarkAllRead(ctx, actor.ID, n.now())
	if err != nil {
		return 0, apperrors.NewDependencyFailure("store", err)
	}
	return count, nil
}
