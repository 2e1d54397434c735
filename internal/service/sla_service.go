package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// SLAService administers deadline rules.
type SLAService struct {
	rules      repository.SLARuleRepository
	guard      *rbac.Guard
	dispatcher *Dispatcher
	now        func() time.Time
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	RuleRepo   repository.SLARuleRepository
	Guard      *rbac.Guard
	Dispatcher *Dispatcher
	Clock      func() time.Time
}

// SLARuleInput describes a rule to create.
type SLARuleInput struct {
	Priority        domain.TicketPriority
	ResponseMinutes int
	ResolutionHours int
	Active          *bool
}

// SLARuleUpdateInput carries optional rule edits.
type SLARuleUpdateInput struct {
	Priority        *domain.TicketPriority
	ResponseMinutes *int
	ResolutionHours *int
	Active          *bool
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	return &SLAService{
		rules:      deps.RuleRepo,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		now:        clockOrDefault(deps.Clock),
	}
}

// ListRules returns every rule, active or not.
func (s *SLAService) ListRules(ctx context.Context, actor *domain.Actor) ([]domain.SLARule, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return rules, nil
}

// CreateRule adds a rule. At most one active rule may exist per priority.
func (s *SLAService) CreateRule(ctx context.Context, actor *domain.Actor, input SLARuleInput) (*domain.SLARule, error) {
	if err := s.authorize(actor, rbac.ActionCreate); err != nil {
		return nil, err
	}
	now := s.now()
	rule := &domain.SLARule{
		Priority:        input.Priority,
		ResponseMinutes: input.ResponseMinutes,
		ResolutionHours: input.ResolutionHours,
		Active:          input.Active == nil || *input.Active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, ruleError(rule, err)
	}
	s.audit(ctx, actor, domain.AuditSLARuleCreated, rule)
	return rule, nil
}

// UpdateRule edits a rule in place.
func (s *SLAService) UpdateRule(ctx context.Context, actor *domain.Actor, id string, input SLARuleUpdateInput) (*domain.SLARule, error) {
	if err := s.authorize(actor, rbac.ActionUpdate); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("sla_rule", id, err)
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.ResponseMinutes != nil {
		rule.ResponseMinutes = *input.ResponseMinutes
	}
	if input.ResolutionHours != nil {
		rule.ResolutionHours = *input.ResolutionHours
	}
	if input.Active != nil {
		rule.Active = *input.Active
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.now()
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, ruleError(rule, err)
	}
	s.audit(ctx, actor, domain.AuditSLARuleUpdated, rule)
	return rule, nil
}

// DeleteRule removes a rule. Existing ticket due dates are left as computed.
func (s *SLAService) DeleteRule(ctx context.Context, actor *domain.Actor, id string) error {
	if err := s.authorize(actor, rbac.ActionDelete); err != nil {
		return err
	}
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return storeError("sla_rule", id, err)
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return storeError("sla_rule", id, err)
	}
	s.audit(ctx, actor, domain.AuditSLARuleDeleted, rule)
	return nil
}

func (s *SLAService) authorize(actor *domain.Actor, action rbac.Action) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !s.guard.Can(actor, action, rbac.Resource{Kind: rbac.KindSLARule}) {
		return apperrors.NewForbidden("administrator role required")
	}
	return nil
}

func (s *SLAService) audit(ctx context.Context, actor *domain.Actor, action string, rule *domain.SLARule) {
	s.dispatcher.OnMutation(ctx, Mutation{
		ActorID:      actor.ID,
		Action:       action,
		ResourceType: domain.ResourceSLARule,
		ResourceID:   rule.ID,
		Details: map[string]any{
			"priority":         rule.Priority,
			"response_minutes": rule.ResponseMinutes,
			"resolution_hours": rule.ResolutionHours,
			"active":           rule.Active,
		},
		Event: events.EventSLARuleChanged,
	})
}

func validateRule(rule *domain.SLARule) error {
	if !rule.Priority.Valid() {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": rule.Priority})
	}
	if rule.ResponseMinutes <= 0 {
		return apperrors.NewValidationError("response_minutes must be positive", map[string]any{"response_minutes": rule.ResponseMinutes})
	}
	if rule.ResolutionHours <= 0 {
		return apperrors.NewValidationError("resolution_hours must be positive", map[string]any{"resolution_hours": rule.ResolutionHours})
	}
	return nil
}

func ruleError(rule *domain.SLARule, err error) error {
	if errors.Is(err, repository.ErrDuplicateActiveRule) {
		return apperrors.NewConflict("an active rule already exists for this priority", map[string]any{"priority": rule.Priority})
	}
	return storeError("sla_rule", rule.ID, err)
}
