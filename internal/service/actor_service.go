package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ActorService manages who may call the API and in which role.
type ActorService struct {
	actors     repository.ActorRepository
	branches   BranchValidator
	guard      *rbac.Guard
	dispatcher *Dispatcher
	now        func() time.Time
}

// ActorDependencies bundles collaborators for the actor service.
type ActorDependencies struct {
	ActorRepo  repository.ActorRepository
	Branches   BranchValidator
	Guard      *rbac.Guard
	Dispatcher *Dispatcher
	Clock      func() time.Time
}

// ActorCreateInput describes a new actor.
type ActorCreateInput struct {
	Name     string
	Email    string
	Role     domain.Role
	Branches []string
}

// ActorUpdateInput carries optional actor edits.
type ActorUpdateInput struct {
	Name     *string
	Role     *domain.Role
	Status   *domain.ActorStatus
	Branches *[]string
}

// ActorListFilter describes listing filters.
type ActorListFilter struct {
	Role   *domain.Role
	Status *domain.ActorStatus
	Limit  int
	Offset int
}

// NewActorService constructs the service.
func NewActorService(deps ActorDependencies) *ActorService {
	return &ActorService{
		actors:     deps.ActorRepo,
		branches:   deps.Branches,
		guard:      deps.Guard,
		dispatcher: deps.Dispatcher,
		now:        clockOrDefault(deps.Clock),
	}
}

// CreateActor registers a new actor. Only one administrator may exist.
func (s *ActorService) CreateActor(ctx context.Context, actor *domain.Actor, input ActorCreateInput) (*domain.Actor, error) {
	if err := s.authorize(actor, rbac.ActionCreate); err != nil {
		return nil, err
	}
	created, err := s.create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor.ID, domain.AuditActorCreated, created, nil)
	return created, nil
}

// BootstrapAdmin creates the administrator when none exists. It reports whether an actor was created;
// when an administrator already exists it is returned unchanged.
func (s *ActorService) BootstrapAdmin(ctx context.Context, name, email string) (*domain.Actor, bool, error) {
	role := domain.RoleAdministrator
	existing, err := s.actors.List(ctx, repository.ActorFilter{Role: &role, Limit: 1})
	if err != nil {
		return nil, false, apperrors.NewDependencyFailure("store", err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}
	created, err := s.create(ctx, ActorCreateInput{Name: name, Email: email, Role: role})
	if err != nil {
		return nil, false, err
	}
	s.audit(ctx, domain.SystemActorID, domain.AuditActorCreated, created, nil)
	return created, true, nil
}

// UpdateActor changes name, role, status or branches.
func (s *ActorService) UpdateActor(ctx context.Context, actor *domain.Actor, id string, input ActorUpdateInput) (*domain.Actor, error) {
	if err := s.authorize(actor, rbac.ActionUpdate); err != nil {
		return nil, err
	}
	target, err := s.actors.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("actor", id, err)
	}

	changes := map[string]any{}
	wasAdmin := target.Role == domain.RoleAdministrator

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", nil)
		}
		if name != target.Name {
			changes["name"] = change(target.Name, name)
			target.Name = name
		}
	}
	if input.Role != nil && *input.Role != target.Role {
		if !input.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *input.Role})
		}
		changes["role"] = change(target.Role, *input.Role)
		target.Role = *input.Role
	}
	if input.Status != nil && *input.Status != target.Status {
		if *input.Status != domain.ActorStatusActive && *input.Status != domain.ActorStatusInactive {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
		changes["status"] = change(target.Status, *input.Status)
		target.Status = *input.Status
	}
	if input.Branches != nil {
		branches, err := s.normalizeBranches(ctx, *input.Branches)
		if err != nil {
			return nil, err
		}
		changes["branches"] = branches
		target.Branches = branches
	}

	if wasAdmin && (target.Role != domain.RoleAdministrator || target.Status != domain.ActorStatusActive) {
		return nil, apperrors.NewConflict("the only administrator cannot be demoted or deactivated", map[string]any{"actor_id": target.ID})
	}
	if !wasAdmin && target.Role == domain.RoleAdministrator {
		if err := s.ensureNoAdministrator(ctx); err != nil {
			return nil, err
		}
	}
	if len(changes) == 0 {
		return target, nil
	}

	target.UpdatedAt = s.now()
	if err := s.actors.Update(ctx, target); err != nil {
		if errors.Is(err, repository.ErrDuplicateAdministrator) {
			return nil, administratorConflict()
		}
		return nil, storeError("actor", target.ID, err)
	}
	s.audit(ctx, actor.ID, domain.AuditActorUpdated, target, changes)
	return target, nil
}

// GetActor returns one actor.
func (s *ActorService) GetActor(ctx context.Context, actor *domain.Actor, id string) (*domain.Actor, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	target, err := s.actors.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("actor", id, err)
	}
	return target, nil
}

// ListActors returns actors matching filter.
func (s *ActorService) ListActors(ctx context.Context, actor *domain.Actor, filter ActorListFilter) ([]domain.Actor, error) {
	if err := s.authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	actors, err := s.actors.List(ctx, repository.ActorFilter{
		Role:   filter.Role,
		Status: filter.Status,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return actors, nil
}

func (s *ActorService) create(ctx context.Context, input ActorCreateInput) (*domain.Actor, error) {
	if err := required(map[string]string{"name": input.Name, "email": input.Email}); err != nil {
		return nil, err
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if input.Role == domain.RoleAdministrator {
		if err := s.ensureNoAdministrator(ctx); err != nil {
			return nil, err
		}
	}
	branches, err := s.normalizeBranches(ctx, input.Branches)
	if err != nil {
		return nil, err
	}
	now := s.now()
	actor := &domain.Actor{
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Role:      input.Role,
		Status:    domain.ActorStatusActive,
		Branches:  branches,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.actors.Create(ctx, actor); err != nil {
		if errors.Is(err, repository.ErrDuplicateAdministrator) {
			return nil, administratorConflict()
		}
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return actor, nil
}

func (s *ActorService) ensureNoAdministrator(ctx context.Context) error {
	count, err := s.actors.CountByRole(ctx, domain.RoleAdministrator)
	if err != nil {
		return apperrors.NewDependencyFailure("store", err)
	}
	if count > 0 {
		return administratorConflict()
	}
	return nil
}

func (s *ActorService) normalizeBranches(ctx context.Context, raw []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, b := range raw {
		acronym := strings.ToUpper(strings.TrimSpace(b))
		if acronym == "" || seen[acronym] {
			continue
		}
		seen[acronym] = true
		if s.branches != nil {
			ok, err := s.branches.IsValid(ctx, acronym)
			if err != nil {
				return nil, apperrors.NewDependencyFailure("branch directory", err)
			}
			if !ok {
				return nil, apperrors.NewValidationError("unknown branch", map[string]any{"branch": acronym})
			}
		}
		out = append(out, acronym)
	}
	return out, nil
}

func (s *ActorService) authorize(actor *domain.Actor, action rbac.Action) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !s.guard.Can(actor, action, rbac.Resource{Kind: rbac.KindActor}) {
		return apperrors.NewForbidden("administrator role required")
	}
	return nil
}

func (s *ActorService) audit(ctx context.Context, actorID, action string, target *domain.Actor, changes map[string]any) {
	details := map[string]any{"role": target.Role, "status": target.Status}
	if changes != nil {
		details["changes"] = changes
	}
	s.dispatcher.OnMutation(ctx, Mutation{
		ActorID:      actorID,
		Action:       action,
		ResourceType: domain.ResourceActor,
		ResourceID:   target.ID,
		Details:      details,
		Event:        events.EventActorChanged,
	})
}

func administratorConflict() error {
	return apperrors.NewConflict("an administrator already exists", map[string]any{"reason": "single_administrator"})
}
