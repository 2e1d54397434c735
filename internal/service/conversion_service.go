package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/numbering"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Conversion outcomes recorded in metrics.
const (
	outcomeSuccess          = "success"
	outcomeAlreadyConverted = "already_converted"
	outcomeIncomplete       = "incomplete"
	outcomeFailed           = "failed"
	outcomeAbandoned        = "abandoned"
)

// ConversionService turns a ticket into an incident exactly once.
type ConversionService struct {
	tickets         repository.TicketRepository
	comments        repository.CommentRepository
	incidents       repository.IncidentRepository
	timeline        repository.TimelineRepository
	actors          repository.ActorRepository
	reconciliations repository.ReconciliationRepository
	tx              repository.Transactor
	guard           *rbac.Guard
	numbers         *numbering.Service
	dispatcher      *Dispatcher
	metrics         *observability.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// ConversionDependencies bundles collaborators for the conversion service.
type ConversionDependencies struct {
	TicketRepo         repository.TicketRepository
	CommentRepo        repository.CommentRepository
	IncidentRepo       repository.IncidentRepository
	TimelineRepo       repository.TimelineRepository
	ActorRepo          repository.ActorRepository
	ReconciliationRepo repository.ReconciliationRepository
	Transactor         repository.Transactor
	Guard              *rbac.Guard
	Numbers            *numbering.Service
	Dispatcher         *Dispatcher
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	Clock              func() time.Time
}

// ConvertInput carries the investigator-facing fields of the new incident.
type ConvertInput struct {
	Category    string
	Severity    domain.Severity
	Description string
	AssigneeID  string
}

// NewConversionService constructs the service.
func NewConversionService(deps ConversionDependencies) *ConversionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversionService{
		tickets:         deps.TicketRepo,
		comments:        deps.CommentRepo,
		incidents:       deps.IncidentRepo,
		timeline:        deps.TimelineRepo,
		actors:          deps.ActorRepo,
		reconciliations: deps.ReconciliationRepo,
		tx:              deps.Transactor,
		guard:           deps.Guard,
		numbers:         deps.Numbers,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		logger:          logger,
		now:             clockOrDefault(deps.Clock),
	}
}

// stepError tags a failure with the conversion step that produced it.
type stepError struct {
	step domain.ConversionStep
	err  error
}

// errConversionAbandoned marks a partial conversion whose ticket was closed or removed
// before it could be frozen. Retrying cannot complete it.
var errConversionAbandoned = errors.New("ticket can no longer be converted")

func (e *stepError) Error() string { return string(e.step) + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// Convert escalates a ticket into a security incident.
func (s *ConversionService) Convert(ctx context.Context, actor *domain.Actor, ticketID string, input ConvertInput) (*domain.Incident, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("ticket", ticketID, err)
	}
	if !s.guard.Can(actor, rbac.ActionConvert, ticketResource(ticket)) {
		return nil, apperrors.NewForbidden("not allowed to convert this ticket")
	}

	existing, err := s.incidents.GetBySourceTicket(ctx, ticket.ID)
	switch {
	case err == nil:
		s.metrics.RecordConversion(outcomeAlreadyConverted)
		return nil, alreadyConverted(existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewImmutable("ticket", map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}

	incident, err := s.draftIncident(ctx, actor, ticket, input)
	if err != nil {
		return nil, err
	}
	var assignee *domain.Actor
	if incident.AssigneeID != nil {
		assignee, err = s.actors.GetByID(ctx, *incident.AssigneeID)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("store", err)
		}
	}

	persist := func(ctx context.Context) error {
		return s.incidents.Create(ctx, incident)
	}
	if s.tx != nil {
		persist = func(ctx context.Context) error {
			return s.tx.WithinTx(ctx, func(ctx context.Context) error {
				if err := s.incidents.Create(ctx, incident); err != nil {
					return err
				}
				return s.completeConversion(ctx, actor.ID, ticket, incident, assignee)
			})
		}
	}

	err = numbering.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return s.numbers.NextIncidentNumber(ctx, incident.Branch, incident.CreatedAt)
	}, func(number string) error {
		incident.Number = number
		incident.ID = ""
		return persist(ctx)
	})
	if errors.Is(err, repository.ErrDuplicateSource) {
		s.metrics.RecordConversion(outcomeAlreadyConverted)
		winner, lookupErr := s.incidents.GetBySourceTicket(ctx, ticket.ID)
		if lookupErr != nil {
			return nil, apperrors.NewConflict("ticket already converted", map[string]any{"reason": "already_converted"})
		}
		return nil, alreadyConverted(winner)
	}
	if errors.Is(err, repository.ErrStaleState) {
		s.metrics.RecordConversion(outcomeFailed)
		return nil, apperrors.NewImmutable("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if errors.Is(err, repository.ErrDuplicateNumber) {
		s.metrics.RecordConversion(outcomeFailed)
		return nil, apperrors.NewConflict("incident number collision", map[string]any{"number": incident.Number})
	}
	if err != nil {
		s.metrics.RecordConversion(outcomeFailed)
		return nil, apperrors.NewDependencyFailure("store", err)
	}

	var incomplete error
	if s.tx == nil {
		if err := s.completeConversion(ctx, actor.ID, ticket, incident, assignee); err != nil {
			incomplete = s.recordIncomplete(ctx, ticket, incident, err)
		}
	}

	details := map[string]any{
		"incident_id":     incident.ID,
		"incident_number": incident.Number,
		"severity":        incident.Severity,
	}
	if incomplete != nil {
		details["needs_reconciliation"] = true
	}
	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditTicketConverted,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details:      details,
		Event:        events.EventTicketConverted,
		Notify: []Recipient{{
			UserID:  ticket.CreatorID,
			Type:    domain.NotifyTicketConverted,
			Title:   "Ticket " + ticket.Number + " escalated",
			Message: "Your ticket is now tracked as security incident " + incident.Number,
		}},
	}
	if incident.AssigneeID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:       *incident.AssigneeID,
			Type:         domain.NotifyIncidentAssigned,
			Title:        "Incident " + incident.Number + " assigned to you",
			Message:      incident.Title,
			ResourceType: domain.ResourceIncident,
			ResourceID:   incident.ID,
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)

	if incomplete != nil {
		s.metrics.RecordConversion(outcomeIncomplete)
		return incident, incomplete
	}
	s.metrics.RecordConversion(outcomeSuccess)
	return incident, nil
}

// Reconcile rolls pending partial conversions forward. It returns how many markers were resolved.
func (s *ConversionService) Reconcile(ctx context.Context) (int, error) {
	markers, err := s.reconciliations.List(ctx, true, 50)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, marker := range markers {
		err := s.reconcileOne(ctx, marker)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, errConversionAbandoned), errors.Is(err, repository.ErrNotFound):
			s.abandon(ctx, marker, err)
		default:
			s.logger.Warn("reconciliation attempt failed",
				zap.String("reconciliation_id", marker.ID),
				zap.String("incident_id", marker.IncidentID),
				zap.Error(err))
		}
	}
	return resolved, nil
}

// abandon closes a marker that no retry can complete so the worker stops picking it up.
func (s *ConversionService) abandon(ctx context.Context, marker domain.Reconciliation, cause error) {
	if err := s.reconciliations.Abandon(ctx, marker.ID, s.now(), cause.Error()); err != nil {
		s.logger.Error("reconciliation abandon failed",
			zap.String("reconciliation_id", marker.ID),
			zap.Error(err))
		return
	}
	s.logger.Warn("reconciliation abandoned",
		zap.String("reconciliation_id", marker.ID),
		zap.String("incident_id", marker.IncidentID),
		zap.String("ticket_id", marker.TicketID),
		zap.Error(cause))
	s.metrics.RecordConversion(outcomeAbandoned)
	s.dispatcher.OnMutation(ctx, Mutation{
		ActorID:      domain.SystemActorID,
		Action:       domain.AuditConversionAbandoned,
		ResourceType: domain.ResourceIncident,
		ResourceID:   marker.IncidentID,
		Details: map[string]any{
			"reconciliation_id": marker.ID,
			"ticket_id":         marker.TicketID,
			"failed_step":       marker.FailedStep,
			"reason":            cause.Error(),
		},
	})
}

// ListReconciliations returns partial-conversion markers to an administrator.
func (s *ConversionService) ListReconciliations(ctx context.Context, actor *domain.Actor, pendingOnly bool, limit int) ([]domain.Reconciliation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.guard.Can(actor, rbac.ActionRead, rbac.Resource{Kind: rbac.KindReconciliation}) {
		return nil, apperrors.NewForbidden("not allowed to view reconciliations")
	}
	markers, err := s.reconciliations.List(ctx, pendingOnly, limit)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return markers, nil
}

func (s *ConversionService) reconcileOne(ctx context.Context, marker domain.Reconciliation) error {
	ticket, err := s.tickets.GetByID(ctx, marker.TicketID)
	if err != nil {
		return err
	}
	incident, err := s.incidents.GetByID(ctx, marker.IncidentID)
	if err != nil {
		return err
	}
	var assignee *domain.Actor
	if incident.AssigneeID != nil {
		if assignee, err = s.actors.GetByID(ctx, *incident.AssigneeID); err != nil {
			return err
		}
	}
	if err := s.completeConversion(ctx, incident.CreatorID, ticket, incident, assignee); err != nil {
		return err
	}
	if err := s.reconciliations.Resolve(ctx, marker.ID, s.now()); err != nil {
		return err
	}
	s.dispatcher.OnMutation(ctx, Mutation{
		ActorID:      domain.SystemActorID,
		Action:       domain.AuditConversionReconciled,
		ResourceType: domain.ResourceTicket,
		ResourceID:   ticket.ID,
		Details: map[string]any{
			"reconciliation_id": marker.ID,
			"incident_id":       incident.ID,
			"failed_step":       marker.FailedStep,
		},
		Event: events.EventTicketConverted,
	})
	return nil
}

func (s *ConversionService) draftIncident(ctx context.Context, actor *domain.Actor, ticket *domain.Ticket, input ConvertInput) (*domain.Incident, error) {
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = ticket.Category
	}
	description := input.Description
	if strings.TrimSpace(description) == "" {
		description = ticket.Description
	}
	now := s.now()
	incident := &domain.Incident{
		Branch:          ticket.Branch,
		Category:        category,
		Title:           ticket.Title,
		Description:     description,
		Severity:        input.Severity,
		Status:          domain.IncidentStatusNew,
		DetectionMethod: domain.DetectionUserReported,
		SourceTicketID:  strPtr(ticket.ID),
		CreatorID:       actor.ID,
		AffectedAsset:   ticket.AffectedSystem,
		AffectedUserID:  strPtr(ticket.CreatorID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := applyIncidentDefaults(incident); err != nil {
		return nil, err
	}

	if id := strings.TrimSpace(input.AssigneeID); id != "" {
		assignee, err := loadInvestigator(ctx, s.actors, id)
		if err != nil {
			return nil, err
		}
		incident.AssigneeID = strPtr(assignee.ID)
		return incident, nil
	}
	officer, err := s.actors.OldestActive(ctx, domain.RoleSecurityOfficer, ticket.Branch)
	switch {
	case err == nil:
		incident.AssigneeID = strPtr(officer.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return incident, nil
}

// completeConversion copies the ticket thread, freezes the ticket and writes the conversion
// entries. Each step skips work already present, so it can be re-run after a partial failure.
func (s *ConversionService) completeConversion(ctx context.Context, actorID string, ticket *domain.Ticket, incident *domain.Incident, assignee *domain.Actor) error {
	existing, err := s.timeline.ListByIncident(ctx, incident.ID, true)
	if err != nil {
		return &stepError{step: domain.StepCopyComments, err: err}
	}
	present := make(map[string]int, len(existing))
	for _, e := range existing {
		present[timelineKey(e.AuthorID, e.Action, e.Description)]++
	}

	comments, err := s.comments.ListByTicket(ctx, ticket.ID, true)
	if err != nil {
		return &stepError{step: domain.StepCopyComments, err: err}
	}
	for _, c := range comments {
		action := domain.TimelineUserComment
		if c.AuthorRole.Staff() {
			action = domain.TimelineStaffComment
		}
		key := timelineKey(c.AuthorID, action, c.Body)
		if present[key] > 0 {
			present[key]--
			continue
		}
		entry := &domain.TimelineEntry{
			IncidentID:  incident.ID,
			AuthorID:    c.AuthorID,
			Action:      action,
			Description: c.Body,
			Internal:    c.Internal,
			CreatedAt:   c.CreatedAt,
		}
		if err := s.timeline.Create(ctx, entry); err != nil {
			return &stepError{step: domain.StepCopyComments, err: err}
		}
	}

	if err := s.tickets.MarkConverted(ctx, ticket.ID); err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			return &stepError{step: domain.StepFreezeTicket, err: err}
		}
		current, getErr := s.tickets.GetByID(ctx, ticket.ID)
		if getErr != nil {
			return &stepError{step: domain.StepFreezeTicket, err: getErr}
		}
		if current.Status != domain.TicketStatusConvertedToIncident {
			return &stepError{
				step: domain.StepFreezeTicket,
				err:  fmt.Errorf("%w: ticket is %s", errConversionAbandoned, current.Status),
			}
		}
	}

	now := s.now()
	wanted := []domain.TimelineEntry{{
		Action:      domain.TimelineConverted,
		Description: "Created from ticket " + ticket.Number,
	}}
	if assignee != nil {
		wanted = append(wanted, domain.TimelineEntry{
			Action:      domain.TimelineAssigned,
			Description: "Assigned to officer " + displayName(assignee),
		})
	}
	for _, w := range wanted {
		if present[timelineKey(actorID, w.Action, w.Description)] > 0 {
			continue
		}
		entry := &domain.TimelineEntry{
			IncidentID:  incident.ID,
			AuthorID:    actorID,
			Action:      w.Action,
			Description: w.Description,
			CreatedAt:   now,
		}
		if err := s.timeline.Create(ctx, entry); err != nil {
			return &stepError{step: domain.StepTimeline, err: err}
		}
	}
	return nil
}

// recordIncomplete persists a reconciliation marker and builds the caller-facing error.
func (s *ConversionService) recordIncomplete(ctx context.Context, ticket *domain.Ticket, incident *domain.Incident, cause error) error {
	step := domain.StepFreezeTicket
	var se *stepError
	if errors.As(cause, &se) {
		step = se.step
	}
	marker := &domain.Reconciliation{
		IncidentID: incident.ID,
		TicketID:   ticket.ID,
		FailedStep: step,
		Error:      cause.Error(),
		CreatedAt:  s.now(),
	}
	details := map[string]any{
		"incident_id":     incident.ID,
		"incident_number": incident.Number,
		"ticket_id":       ticket.ID,
		"failed_step":     step,
	}
	if err := s.reconciliations.Create(context.WithoutCancel(ctx), marker); err != nil {
		s.logger.Error("reconciliation marker write failed",
			zap.String("incident_id", incident.ID),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		s.metrics.RecordSideEffectFailure("reconciliation")
	} else {
		details["reconciliation_id"] = marker.ID
	}
	s.logger.Error("conversion incomplete",
		zap.String("reconciliation_id", marker.ID),
		zap.String("incident_id", incident.ID),
		zap.String("ticket_id", ticket.ID),
		zap.String("failed_step", string(step)),
		zap.Error(cause))
	return apperrors.NewConversionIncomplete(details, cause)
}

func alreadyConverted(incident *domain.Incident) error {
	return apperrors.NewConflict("ticket already converted", map[string]any{
		"reason":          "already_converted",
		"incident_id":     incident.ID,
		"incident_number": incident.Number,
	})
}

func timelineKey(author string, action domain.TimelineAction, description string) string {
	return author + "\x00" + string(action) + "\x00" + description
}
