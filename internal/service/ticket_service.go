package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/numbering"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/sla"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	actors      repository.ActorRepository
	tx          repository.Transactor
	attachments AttachmentCollaborator
	branches    BranchValidator
	guard       *rbac.Guard
	sla         *sla.Calculator
	numbers     *numbering.Service
	dispatcher  *Dispatcher
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	ActorRepo   repository.ActorRepository
	Transactor  repository.Transactor
	Attachments AttachmentCollaborator
	Branches    BranchValidator
	Guard       *rbac.Guard
	SLA         *sla.Calculator
	Numbers     *numbering.Service
	Dispatcher  *Dispatcher
	Clock       func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Branch         string
	Category       string
	Title          string
	Description    string
	Priority       domain.TicketPriority
	AffectedSystem string
}

// TicketUpdateInput carries optional field edits. A nil field is left unchanged; an empty
// AssigneeID clears the assignee.
type TicketUpdateInput struct {
	Title          *string
	Description    *string
	Category       *string
	Priority       *domain.TicketPriority
	Status         *domain.TicketStatus
	AssigneeID     *string
	AffectedSystem *string
}

func (in TicketUpdateInput) onlyDescription() bool {
	return in.Title == nil && in.Category == nil && in.Priority == nil && in.Status == nil &&
		in.AssigneeID == nil && in.AffectedSystem == nil
}

func (in TicketUpdateInput) onlyClosure() bool {
	return in.Status != nil && *in.Status == domain.TicketStatusClosed &&
		in.Title == nil && in.Description == nil && in.Category == nil && in.Priority == nil &&
		in.AssigneeID == nil && in.AffectedSystem == nil
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Breached   bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketView is a ticket with the comments its reader may see.
type TicketView struct {
	Ticket      *domain.Ticket
	Comments    []domain.Comment
	SLABreached bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		actors:      deps.ActorRepo,
		tx:          deps.Transactor,
		attachments: deps.Attachments,
		branches:    deps.Branches,
		guard:       deps.Guard,
		sla:         deps.SLA,
		numbers:     deps.Numbers,
		dispatcher:  deps.Dispatcher,
		now:         clockOrDefault(deps.Clock),
	}
}

// CreateTicket files a new ticket, auto-assigning the longest-tenured active support agent.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	branch := strings.ToUpper(strings.TrimSpace(input.Branch))
	if !s.guard.Can(actor, rbac.ActionCreate, rbac.Resource{Kind: rbac.KindTicket, Branch: branch}) {
		return nil, apperrors.NewForbidden("not allowed to create tickets")
	}
	if err := required(map[string]string{
		"title":       input.Title,
		"description": input.Description,
		"category":    input.Category,
		"branch":      branch,
	}); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	if s.branches != nil {
		ok, err := s.branches.IsValid(ctx, branch)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("branch directory", err)
		}
		if !ok {
			return nil, apperrors.NewValidationError("unknown branch", map[string]any{"branch": branch})
		}
	}

	now := s.now()
	ticket := &domain.Ticket{
		Branch:         branch,
		Category:       strings.TrimSpace(input.Category),
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Priority:       priority,
		Status:         domain.TicketStatusNew,
		CreatorID:      actor.ID,
		AffectedSystem: strings.TrimSpace(input.AffectedSystem),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	agent, err := s.actors.OldestActive(ctx, domain.RoleSupportAgent, branch)
	switch {
	case err == nil:
		ticket.AssigneeID = strPtr(agent.ID)
		ticket.Status = domain.TicketStatusAssigned
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewDependencyFailure("store", err)
	}

	due, err := s.sla.DueDate(ctx, priority, now)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	ticket.SLADueAt = due

	err = numbering.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return s.numbers.NextTicketNumber(ctx, branch)
	}, func(number string) error {
		ticket.Number = number
		return s.tickets.Create(ctx, ticket)
	})
	if errors.Is(err, repository.ErrDuplicateNumber) {
		return nil, apperrors.NewConflict("ticket number collision", map[string]any{"number": ticket.Number})
	}
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditTicketCreated,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details: map[string]any{
			"number":   ticket.Number,
			"priority": ticket.Priority,
			"branch":   ticket.Branch,
		},
		Event: events.EventTicketCreated,
		Broadcast: &RoleBroadcast{
			Roles:   []domain.Role{domain.RoleSupportAgent, domain.RoleAdministrator},
			Exclude: []string{actor.ID, derefOr(ticket.AssigneeID, "")},
			Type:    domain.NotifyTicketCreated,
			Title:   "New ticket " + ticket.Number,
			Message: ticket.Title,
		},
	}
	if ticket.AssigneeID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *ticket.AssigneeID,
			Type:    domain.NotifyTicketAssigned,
			Title:   "Ticket " + ticket.Number + " assigned to you",
			Message: ticket.Title,
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return ticket, nil
}

// GetTicket returns a ticket with the comments actor may see.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Actor, ticketID string) (*TicketView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.loadReadable(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	includeInternal := s.guard.Can(actor, rbac.ActionReadInternal, ticketResource(ticket))
	comments, err := s.comments.ListByTicket(ctx, ticket.ID, includeInternal)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return &TicketView{
		Ticket:      ticket,
		Comments:    comments,
		SLABreached: sla.IsBreached(ticket, s.now()),
	}, nil
}

// ListTickets returns the tickets visible to actor.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch s.guard.ListScope(actor, rbac.ActionRead, rbac.KindTicket) {
	case rbac.ScopeAny:
	case rbac.ScopeAssignable:
		repoFilter.AssignableTo = strPtr(actor.ID)
		repoFilter.Branches = actor.Branches
	case rbac.ScopeOwn, rbac.ScopeOwnOpen:
		repoFilter.CreatorID = strPtr(actor.ID)
	default:
		return nil, apperrors.NewForbidden("not allowed to list tickets")
	}
	if filter.Breached {
		now := s.now()
		repoFilter.BreachedAt = &now
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return tickets, nil
}

// UpdateTicket applies field edits and status transitions.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.Actor, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.loadReadable(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	res := ticketResource(ticket)
	loaded := ticket.Status

	if ticket.Status.Locked() {
		closing := ticket.Status == domain.TicketStatusResolved && input.onlyClosure() &&
			actor.Role.Staff() && s.guard.Can(actor, rbac.ActionUpdate, res)
		if !closing {
			return nil, apperrors.NewImmutable("ticket", map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
		}
	}
	if !s.guard.Can(actor, rbac.ActionUpdate, res) {
		return nil, apperrors.NewForbidden("not allowed to update this ticket")
	}
	if actor.Role == domain.RoleEndUser && !input.onlyDescription() {
		return nil, apperrors.NewForbidden("end users may only edit the description")
	}

	now := s.now()
	changes := map[string]any{}
	previousAssignee := ticket.AssigneeID

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		if title != ticket.Title {
			changes["title"] = change(ticket.Title, title)
			ticket.Title = title
		}
	}
	if input.Description != nil {
		if strings.TrimSpace(*input.Description) == "" {
			return nil, apperrors.NewValidationError("description cannot be empty", nil)
		}
		if *input.Description != ticket.Description {
			changes["description"] = true
			ticket.Description = *input.Description
		}
	}
	if input.Category != nil {
		category := strings.TrimSpace(*input.Category)
		if category == "" {
			return nil, apperrors.NewValidationError("category cannot be empty", nil)
		}
		if category != ticket.Category {
			changes["category"] = change(ticket.Category, category)
			ticket.Category = category
		}
	}
	if input.AffectedSystem != nil && strings.TrimSpace(*input.AffectedSystem) != ticket.AffectedSystem {
		next := strings.TrimSpace(*input.AffectedSystem)
		changes["affected_system"] = change(ticket.AffectedSystem, next)
		ticket.AffectedSystem = next
	}
	if input.Priority != nil && *input.Priority != ticket.Priority {
		if !input.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		changes["priority"] = change(ticket.Priority, *input.Priority)
		ticket.Priority = *input.Priority
		if ticket.Status.Open() {
			due, err := s.sla.DueDate(ctx, ticket.Priority, now)
			if err != nil {
				return nil, apperrors.NewDependencyFailure("store", err)
			}
			ticket.SLADueAt = due
		}
	}
	if input.AssigneeID != nil {
		if err := s.applyAssignee(ctx, ticket, strings.TrimSpace(*input.AssigneeID)); err != nil {
			return nil, err
		}
		if !sameStrPtr(previousAssignee, ticket.AssigneeID) {
			changes["assignee_id"] = change(derefOr(previousAssignee, ""), derefOr(ticket.AssigneeID, ""))
		}
	}
	if input.Status != nil && *input.Status != ticket.Status {
		next := *input.Status
		if next == domain.TicketStatusConvertedToIncident {
			return nil, apperrors.NewValidationError("tickets become incidents only through conversion", nil)
		}
		if !next.Valid() || !ticket.Status.CanTransitionTo(next) {
			return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": ticket.Status,
				"to":   next,
			})
		}
		changes["status"] = change(ticket.Status, next)
		ticket.Status = next
		switch next {
		case domain.TicketStatusResolved:
			ticket.ResolvedAt = &now
		case domain.TicketStatusClosed:
			ticket.ClosedAt = &now
		}
	} else if changes["assignee_id"] != nil && ticket.Status == domain.TicketStatusNew && ticket.AssigneeID != nil {
		changes["status"] = change(ticket.Status, domain.TicketStatusAssigned)
		ticket.Status = domain.TicketStatusAssigned
	}

	if len(changes) == 0 {
		return ticket, nil
	}
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, loaded); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.staleTicket(ctx, ticket.ID)
		}
		return nil, storeError("ticket", ticket.ID, err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditTicketUpdated,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details:      map[string]any{"number": ticket.Number, "changes": changes},
		Event:        events.EventTicketUpdated,
	}
	if ticket.AssigneeID != nil && !sameStrPtr(previousAssignee, ticket.AssigneeID) {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *ticket.AssigneeID,
			Type:    domain.NotifyTicketAssigned,
			Title:   "Ticket " + ticket.Number + " assigned to you",
			Message: ticket.Title,
		})
	}
	if actor.ID != ticket.CreatorID {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  ticket.CreatorID,
			Type:    domain.NotifyTicketUpdated,
			Title:   "Ticket " + ticket.Number + " updated",
			Message: fmt.Sprintf("Status: %s, priority: %s", ticket.Status, ticket.Priority),
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return ticket, nil
}

// AddComment appends a comment to a ticket thread.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.Actor, ticketID, body string, internal bool) (*domain.Comment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.loadReadable(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if internal && !s.guard.Can(actor, rbac.ActionReadInternal, ticketResource(ticket)) {
		return nil, apperrors.NewForbidden("not allowed to post internal comments")
	}
	if ticket.Status.Locked() {
		return nil, apperrors.NewImmutable("ticket", map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}
	if !s.guard.Can(actor, rbac.ActionComment, ticketResource(ticket)) {
		return nil, apperrors.NewForbidden("not allowed to comment on this ticket")
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorRole: actor.Role,
		Body:       body,
		Internal:   internal,
		CreatedAt:  s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditTicketCommented,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details:      map[string]any{"comment_id": comment.ID, "internal": internal},
		Event:        events.EventTicketCommented,
	}
	preview := stringPreview(body, 140)
	if !internal {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  ticket.CreatorID,
			Type:    domain.NotifyTicketComment,
			Title:   "New comment on " + ticket.Number,
			Message: preview,
		})
	}
	if ticket.AssigneeID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *ticket.AssigneeID,
			Type:    domain.NotifyTicketComment,
			Title:   "New comment on " + ticket.Number,
			Message: preview,
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return comment, nil
}

// DeleteTicket removes an unresolved ticket together with its comments and attachments.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.Actor, ticketID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	ticket, err := s.loadReadable(ctx, actor, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status.Locked() {
		return apperrors.NewImmutable("ticket", map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}
	if !s.guard.Can(actor, rbac.ActionDelete, ticketResource(ticket)) {
		return apperrors.NewForbidden("not allowed to delete this ticket")
	}

	if s.attachments != nil {
		if err := s.attachments.DeleteAttachments(ctx, domain.ResourceTicket, ticket.ID); err != nil {
			return apperrors.NewDependencyFailure("attachments", err)
		}
	}
	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.comments.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		return s.tickets.Delete(ctx, ticket.ID)
	})
	if err != nil {
		return storeError("ticket", ticket.ID, err)
	}

	s.dispatcher.OnMutation(ctx, Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditTicketDeleted,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details:      map[string]any{"number": ticket.Number, "title": ticket.Title},
		Event:        events.EventTicketDeleted,
	})
	return nil
}

// staleTicket explains a conditional write that lost to a concurrent one.
func (s *TicketService) staleTicket(ctx context.Context, ticketID string) error {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return storeError("ticket", ticketID, err)
	}
	details := map[string]any{"ticket_id": ticketID, "status": current.Status}
	if current.Status.Locked() {
		return apperrors.NewImmutable("ticket", details)
	}
	return apperrors.NewConflict("ticket was changed by another request", details)
}

func (s *TicketService) loadReadable(ctx context.Context, actor *domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("ticket", ticketID, err)
	}
	if !s.guard.Can(actor, rbac.ActionRead, ticketResource(ticket)) {
		return nil, apperrors.NewForbidden("not allowed to access this ticket")
	}
	return ticket, nil
}

// applyAssignee sets or clears the assignee. Only active staff may hold a ticket.
func (s *TicketService) applyAssignee(ctx context.Context, ticket *domain.Ticket, assigneeID string) error {
	if assigneeID == "" {
		ticket.AssigneeID = nil
		return nil
	}
	assignee, err := s.actors.GetByID(ctx, assigneeID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewValidationError("assignee not found", map[string]any{"assignee_id": assigneeID})
	}
	if err != nil {
		return apperrors.NewDependencyFailure("store", err)
	}
	if !assignee.Active() || !assignee.Role.Staff() {
		return apperrors.NewValidationError("assignee must be active staff", map[string]any{"assignee_id": assigneeID})
	}
	if assignee.Role == domain.RoleSupportAgent && !assignee.InBranch(ticket.Branch) {
		return apperrors.NewValidationError("assignee does not serve this branch", map[string]any{"assignee_id": assigneeID})
	}
	ticket.AssigneeID = strPtr(assignee.ID)
	return nil
}

func change(from, to any) map[string]any {
	return map[string]any{"from": from, "to": to}
}
