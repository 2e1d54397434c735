package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/numbering"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// IncidentService coordinates the investigation pipeline.
type IncidentService struct {
	incidents  repository.IncidentRepository
	timeline   repository.TimelineRepository
	actors     repository.ActorRepository
	tx         repository.Transactor
	branches   BranchValidator
	guard      *rbac.Guard
	numbers    *numbering.Service
	dispatcher *Dispatcher
	now        func() time.Time
}

// IncidentDependencies bundles collaborators for the incident service.
type IncidentDependencies struct {
	IncidentRepo repository.IncidentRepository
	TimelineRepo repository.TimelineRepository
	ActorRepo    repository.ActorRepository
	Transactor   repository.Transactor
	Branches     BranchValidator
	Guard        *rbac.Guard
	Numbers      *numbering.Service
	Dispatcher   *Dispatcher
	Clock        func() time.Time
}

// IncidentCreateInput describes a directly reported incident.
type IncidentCreateInput struct {
	Branch                string
	Category              string
	Title                 string
	Description           string
	Severity              domain.Severity
	DetectionMethod       domain.DetectionMethod
	ConfidentialityImpact domain.Impact
	IntegrityImpact       domain.Impact
	AvailabilityImpact    domain.Impact
	AssigneeID            string
}

// IncidentUpdateInput carries optional edits. A nil field is left unchanged.
type IncidentUpdateInput struct {
	Title                 *string
	Description           *string
	Category              *string
	Severity              *domain.Severity
	Status                *domain.IncidentStatus
	AssigneeID            *string
	DetectionMethod       *domain.DetectionMethod
	ConfidentialityImpact *domain.Impact
	IntegrityImpact       *domain.Impact
	AvailabilityImpact    *domain.Impact
	RootCause             *string
	ResolutionSummary     *string
}

// IncidentListFilter describes listing filters.
type IncidentListFilter struct {
	Statuses   []domain.IncidentStatus
	Severities []domain.Severity
	AssigneeID *string
	Branch     string
	Limit      int
	Offset     int
}

// IncidentView is an incident with the timeline its reader may see.
type IncidentView struct {
	Incident *domain.Incident
	Timeline []domain.TimelineEntry
}

// NewIncidentService constructs the service.
func NewIncidentService(deps IncidentDependencies) *IncidentService {
	return &IncidentService{
		incidents:  deps.IncidentRepo,
		timeline:   deps.TimelineRepo,
		actors:     deps.ActorRepo,
		tx:         deps.Transactor,
		branches:   deps.Branches,
		guard:      deps.Guard,
		numbers:    deps.Numbers,
		dispatcher: deps.Dispatcher,
		now:        clockOrDefault(deps.Clock),
	}
}

// CreateIncident opens an incident that did not come from a ticket.
func (s *IncidentService) CreateIncident(ctx context.Context, actor *domain.Actor, input IncidentCreateInput) (*domain.Incident, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !s.guard.Can(actor, rbac.ActionCreate, rbac.Resource{Kind: rbac.KindIncident}) {
		return nil, apperrors.NewForbidden("not allowed to create incidents")
	}
	if err := required(map[string]string{
		"title":       input.Title,
		"description": input.Description,
		"category":    input.Category,
	}); err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		Branch:                strings.ToUpper(strings.TrimSpace(input.Branch)),
		Category:              strings.TrimSpace(input.Category),
		Title:                 strings.TrimSpace(input.Title),
		Description:           input.Description,
		Severity:              input.Severity,
		Status:                domain.IncidentStatusNew,
		DetectionMethod:       input.DetectionMethod,
		ConfidentialityImpact: input.ConfidentialityImpact,
		IntegrityImpact:       input.IntegrityImpact,
		AvailabilityImpact:    input.AvailabilityImpact,
		CreatorID:             actor.ID,
	}
	if err := applyIncidentDefaults(incident); err != nil {
		return nil, err
	}
	if incident.Branch != "" && s.branches != nil {
		ok, err := s.branches.IsValid(ctx, incident.Branch)
		if err != nil {
			return nil, apperrors.NewDependencyFailure("branch directory", err)
		}
		if !ok {
			return nil, apperrors.NewValidationError("unknown branch", map[string]any{"branch": incident.Branch})
		}
	}
	if id := strings.TrimSpace(input.AssigneeID); id != "" {
		assignee, err := s.investigator(ctx, id)
		if err != nil {
			return nil, err
		}
		incident.AssigneeID = strPtr(assignee.ID)
	}

	now := s.now()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	err := numbering.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return s.numbers.NextIncidentNumber(ctx, incident.Branch, now)
	}, func(number string) error {
		incident.Number = number
		return withinTx(ctx, s.tx, func(ctx context.Context) error {
			if err := s.incidents.Create(ctx, incident); err != nil {
				return err
			}
			return s.timeline.Create(ctx, &domain.TimelineEntry{
				IncidentID:  incident.ID,
				AuthorID:    actor.ID,
				Action:      domain.TimelineCreated,
				Description: "Incident " + incident.Number + " created",
				CreatedAt:   now,
			})
		})
	})
	if errors.Is(err, repository.ErrDuplicateNumber) {
		return nil, apperrors.NewConflict("incident number collision", map[string]any{"number": incident.Number})
	}
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditIncidentCreated,
		ResourceType: domain.ResourceIncident,
		ResourceID:   incident.ID,
		Details: map[string]any{
			"number":   incident.Number,
			"severity": incident.Severity,
		},
		Event: events.EventIncidentCreated,
		Broadcast: &RoleBroadcast{
			Roles:   []domain.Role{domain.RoleSecurityOfficer, domain.RoleAdministrator},
			Exclude: []string{actor.ID},
			Type:    domain.NotifyIncidentCreated,
			Title:   "New incident " + incident.Number,
			Message: incident.Title,
		},
	}
	if incident.AssigneeID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *incident.AssigneeID,
			Type:    domain.NotifyIncidentAssigned,
			Title:   "Incident " + incident.Number + " assigned to you",
			Message: incident.Title,
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return incident, nil
}

// GetIncident returns an incident with the timeline entries actor may see.
func (s *IncidentService) GetIncident(ctx context.Context, actor *domain.Actor, incidentID string) (*IncidentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, storeError("incident", incidentID, err)
	}
	res := incidentResource(incident)
	if !s.guard.Can(actor, rbac.ActionRead, res) {
		return nil, apperrors.NewForbidden("not allowed to access this incident")
	}
	entries, err := s.timeline.ListByIncident(ctx, incident.ID, s.guard.Can(actor, rbac.ActionReadInternal, res))
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return &IncidentView{Incident: incident, Timeline: entries}, nil
}

// ListIncidents returns the incidents visible to actor.
func (s *IncidentService) ListIncidents(ctx context.Context, actor *domain.Actor, filter IncidentListFilter) ([]domain.Incident, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	repoFilter := repository.IncidentFilter{
		AssigneeID: filter.AssigneeID,
		Statuses:   filter.Statuses,
		Severities: filter.Severities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if branch := strings.ToUpper(strings.TrimSpace(filter.Branch)); branch != "" {
		repoFilter.Branch = &branch
	}
	switch s.guard.ListScope(actor, rbac.ActionRead, rbac.KindIncident) {
	case rbac.ScopeAny:
	case rbac.ScopeOwn, rbac.ScopeOwnOpen:
		repoFilter.AffectedUserID = strPtr(actor.ID)
	default:
		return nil, apperrors.NewForbidden("not allowed to list incidents")
	}
	incidents, err := s.incidents.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	return incidents, nil
}

// UpdateIncident applies investigation edits and status transitions.
func (s *IncidentService) UpdateIncident(ctx context.Context, actor *domain.Actor, incidentID string, input IncidentUpdateInput) (*domain.Incident, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, storeError("incident", incidentID, err)
	}
	res := incidentResource(incident)
	loaded := incident.Status
	if !s.guard.Can(actor, rbac.ActionRead, res) {
		return nil, apperrors.NewForbidden("not allowed to access this incident")
	}
	if incident.Status == domain.IncidentStatusClosed {
		return nil, apperrors.NewImmutable("incident", map[string]any{"incident_id": incident.ID, "status": incident.Status})
	}
	if !s.guard.Can(actor, rbac.ActionUpdate, res) {
		return nil, apperrors.NewForbidden("not allowed to update this incident")
	}

	now := s.now()
	changes := map[string]any{}
	var entries []domain.TimelineEntry
	previousAssignee := incident.AssigneeID

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		if title != incident.Title {
			changes["title"] = change(incident.Title, title)
			incident.Title = title
		}
	}
	if input.Description != nil && *input.Description != incident.Description {
		if strings.TrimSpace(*input.Description) == "" {
			return nil, apperrors.NewValidationError("description cannot be empty", nil)
		}
		changes["description"] = true
		incident.Description = *input.Description
	}
	if input.Category != nil && strings.TrimSpace(*input.Category) != incident.Category {
		category := strings.TrimSpace(*input.Category)
		if category == "" {
			return nil, apperrors.NewValidationError("category cannot be empty", nil)
		}
		changes["category"] = change(incident.Category, category)
		incident.Category = category
	}
	if input.Severity != nil && *input.Severity != incident.Severity {
		if !input.Severity.Valid() {
			return nil, apperrors.NewValidationError("invalid severity", map[string]any{"severity": *input.Severity})
		}
		changes["severity"] = change(incident.Severity, *input.Severity)
		incident.Severity = *input.Severity
	}
	if input.DetectionMethod != nil && *input.DetectionMethod != incident.DetectionMethod {
		if !input.DetectionMethod.Valid() {
			return nil, apperrors.NewValidationError("invalid detection method", map[string]any{"detection_method": *input.DetectionMethod})
		}
		changes["detection_method"] = change(incident.DetectionMethod, *input.DetectionMethod)
		incident.DetectionMethod = *input.DetectionMethod
	}
	for _, impact := range []struct {
		name string
		next *domain.Impact
		slot *domain.Impact
	}{
		{"confidentiality_impact", input.ConfidentialityImpact, &incident.ConfidentialityImpact},
		{"integrity_impact", input.IntegrityImpact, &incident.IntegrityImpact},
		{"availability_impact", input.AvailabilityImpact, &incident.AvailabilityImpact},
	} {
		if impact.next == nil || *impact.next == *impact.slot {
			continue
		}
		if !impact.next.Valid() {
			return nil, apperrors.NewValidationError("invalid impact rating", map[string]any{impact.name: *impact.next})
		}
		changes[impact.name] = change(*impact.slot, *impact.next)
		*impact.slot = *impact.next
	}
	if input.RootCause != nil && !sameStrPtr(input.RootCause, incident.RootCause) {
		changes["root_cause"] = true
		incident.RootCause = strPtr(*input.RootCause)
	}
	if input.ResolutionSummary != nil && !sameStrPtr(input.ResolutionSummary, incident.ResolutionSummary) {
		changes["resolution_summary"] = true
		incident.ResolutionSummary = strPtr(*input.ResolutionSummary)
	}
	if len(changes) > 0 {
		entries = append(entries, domain.TimelineEntry{
			Action:      domain.TimelineUpdated,
			Description: "Updated " + strings.Join(sortedKeys(changes), ", "),
			Internal:    true,
		})
	}

	if input.AssigneeID != nil {
		id := strings.TrimSpace(*input.AssigneeID)
		switch {
		case id == "" && incident.AssigneeID != nil:
			incident.AssigneeID = nil
		case id != "" && derefOr(incident.AssigneeID, "") != id:
			assignee, err := s.investigator(ctx, id)
			if err != nil {
				return nil, err
			}
			incident.AssigneeID = strPtr(assignee.ID)
			entries = append(entries, domain.TimelineEntry{
				Action:      domain.TimelineAssigned,
				Description: "Assigned to " + displayName(assignee),
			})
		}
		if !sameStrPtr(previousAssignee, incident.AssigneeID) {
			changes["assignee_id"] = change(derefOr(previousAssignee, ""), derefOr(incident.AssigneeID, ""))
		}
	}

	if input.Status != nil && *input.Status != incident.Status {
		next := *input.Status
		if !next.Valid() || !incident.Status.CanTransitionTo(next) {
			return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": incident.Status,
				"to":   next,
			})
		}
		changes["status"] = change(incident.Status, next)
		entries = append(entries, domain.TimelineEntry{
			Action:      domain.TimelineStatusChanged,
			Description: "Status changed from " + string(incident.Status) + " to " + string(next),
			Internal:    !next.PublicProgress(),
		})
		incident.Status = next
		incident.StampStatus(next, now)
	}

	if len(changes) == 0 {
		return incident, nil
	}
	incident.UpdatedAt = now

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.incidents.Update(ctx, incident, loaded); err != nil {
			return err
		}
		for i := range entries {
			entries[i].IncidentID = incident.ID
			entries[i].AuthorID = actor.ID
			entries[i].CreatedAt = now
			if err := s.timeline.Create(ctx, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrStaleState) {
		return nil, s.staleIncident(ctx, incident.ID)
	}
	if err != nil {
		return nil, storeError("incident", incident.ID, err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditIncidentUpdated,
		ResourceType: domain.ResourceIncident,
		ResourceID:   incident.ID,
		Details:      map[string]any{"number": incident.Number, "changes": changes},
		Event:        events.EventIncidentUpdated,
	}
	if incident.AssigneeID != nil && !sameStrPtr(previousAssignee, incident.AssigneeID) {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *incident.AssigneeID,
			Type:    domain.NotifyIncidentAssigned,
			Title:   "Incident " + incident.Number + " assigned to you",
			Message: incident.Title,
		})
	}
	if incident.SourceTicketID != nil && incident.AffectedUserID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *incident.AffectedUserID,
			Type:    domain.NotifyIncidentUpdated,
			Title:   "Incident " + incident.Number + " updated",
			Message: "Status: " + string(incident.Status),
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return incident, nil
}

// staleIncident explains a conditional write that lost to a concurrent one.
func (s *IncidentService) staleIncident(ctx context.Context, incidentID string) error {
	current, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return storeError("incident", incidentID, err)
	}
	details := map[string]any{"incident_id": incidentID, "status": current.Status}
	if current.Status == domain.IncidentStatusClosed {
		return apperrors.NewImmutable("incident", details)
	}
	return apperrors.NewConflict("incident was changed by another request", details)
}

// AddTimelineEntry records an investigator note on an open incident.
func (s *IncidentService) AddTimelineEntry(ctx context.Context, actor *domain.Actor, incidentID string, action domain.TimelineAction, description string, internal bool) (*domain.TimelineEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, storeError("incident", incidentID, err)
	}
	if !s.guard.Can(actor, rbac.ActionAnnotate, incidentResource(incident)) {
		return nil, apperrors.NewForbidden("not allowed to annotate this incident")
	}
	if incident.Status == domain.IncidentStatusClosed {
		return nil, apperrors.NewImmutable("incident", map[string]any{"incident_id": incident.ID, "status": incident.Status})
	}
	if strings.TrimSpace(description) == "" {
		return nil, apperrors.NewValidationError("description is required", nil)
	}
	if action == "" {
		action = domain.TimelineNote
	}

	entry := &domain.TimelineEntry{
		IncidentID:  incident.ID,
		AuthorID:    actor.ID,
		Action:      action,
		Description: description,
		Internal:    internal,
		CreatedAt:   s.now(),
	}
	if err := s.timeline.AppendOpen(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperrors.NewImmutable("incident", map[string]any{"incident_id": incident.ID, "status": domain.IncidentStatusClosed})
		}
		return nil, storeError("incident", incident.ID, err)
	}

	mutation := Mutation{
		ActorID:      actor.ID,
		Action:       domain.AuditIncidentTimelineAdded,
		ResourceType: domain.ResourceIncident,
		ResourceID:   incident.ID,
		Details:      map[string]any{"entry_id": entry.ID, "action": entry.Action, "internal": internal},
		Event:        events.EventIncidentTimelineAdded,
	}
	if !internal && incident.SourceTicketID != nil && incident.AffectedUserID != nil {
		mutation.Notify = append(mutation.Notify, Recipient{
			UserID:  *incident.AffectedUserID,
			Type:    domain.NotifyIncidentTimeline,
			Title:   "Update on incident " + incident.Number,
			Message: stringPreview(description, 140),
		})
	}
	s.dispatcher.OnMutation(ctx, mutation)
	return entry, nil
}

// investigator resolves an assignee that may hold an incident.
func (s *IncidentService) investigator(ctx context.Context, id string) (*domain.Actor, error) {
	return loadInvestigator(ctx, s.actors, id)
}

func loadInvestigator(ctx context.Context, actors repository.ActorRepository, id string) (*domain.Actor, error) {
	assignee, err := actors.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewValidationError("assignee not found", map[string]any{"assignee_id": id})
	}
	if err != nil {
		return nil, apperrors.NewDependencyFailure("store", err)
	}
	if !assignee.Active() || (assignee.Role != domain.RoleSecurityOfficer && assignee.Role != domain.RoleAdministrator) {
		return nil, apperrors.NewValidationError("assignee must be an active security officer or administrator",
			map[string]any{"assignee_id": id})
	}
	return assignee, nil
}

func applyIncidentDefaults(incident *domain.Incident) error {
	if incident.Severity == "" {
		incident.Severity = domain.SeverityMedium
	}
	if !incident.Severity.Valid() {
		return apperrors.NewValidationError("invalid severity", map[string]any{"severity": incident.Severity})
	}
	if incident.DetectionMethod == "" {
		incident.DetectionMethod = domain.DetectionUserReported
	}
	if !incident.DetectionMethod.Valid() {
		return apperrors.NewValidationError("invalid detection method", map[string]any{"detection_method": incident.DetectionMethod})
	}
	for _, impact := range []*domain.Impact{
		&incident.ConfidentialityImpact,
		&incident.IntegrityImpact,
		&incident.AvailabilityImpact,
	} {
		if *impact == "" {
			*impact = domain.ImpactNone
		}
		if !impact.Valid() {
			return apperrors.NewValidationError("invalid impact rating", map[string]any{"impact": *impact})
		}
	}
	return nil
}

func displayName(a *domain.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
