package service

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	audit repository.AuditRepository
	guard *rbac.Guard
}

// AuditFilter narrows an audit query.
type AuditFilter struct {
	ResourceType *domain.ResourceType
	ResourceID   *string
	ActorID      *string
	Limit        int
	Offset       int
}

// NewAuditService constructs the service.
func NewAuditService(audit repository.AuditRepository, guard *rbac.Guard) *AuditService {
	return &AuditService{audit: audit, guard: guard}
}

// List returns matching entries, newest first.
func (s *AuditService) List(ctx context.Context, actor *domain.Actor, filter AuditFilter) ([]domain.AuditLogEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.guard.Can(actor, rbac.ActionRead, rbac.Resource{Kind: rbac.KindAudit}) {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	entries, err := s.audit.List(ctx, repository.AuditFilter{
		ResourceType: filter.ResourceType,
		ResourceID:   filter.ResourceID,
		ActorID:      filter.ActorID,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return entries, nil
}
