package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// IncidentsHandler serves incident endpoints.
type IncidentsHandler struct {
	incidents *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidents *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{incidents: incidents}
}

// CreateIncident POST /incidents.
func (h *IncidentsHandler) CreateIncident(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateIncidentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	incident, err := h.incidents.CreateIncident(c.UserContext(), actor, service.IncidentCreateInput{
		Branch:                req.Branch,
		Category:              req.Category,
		Title:                 req.Title,
		Description:           req.Description,
		Severity:              req.Severity,
		DetectionMethod:       req.DetectionMethod,
		ConfidentialityImpact: req.ConfidentialityImpact,
		IntegrityImpact:       req.IntegrityImpact,
		AvailabilityImpact:    req.AvailabilityImpact,
		AssigneeID:            req.AssigneeID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": incidentSummary(incident)})
}

// ListIncidents GET /incidents.
func (h *IncidentsHandler) ListIncidents(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	filter := service.IncidentListFilter{
		AssigneeID: optionalQuery(c, "assignee_id"),
		Branch:     c.Query("branch"),
		Limit:      limit,
		Offset:     offset,
	}
	for _, s := range parseList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.IncidentStatus(s))
	}
	for _, s := range parseList(c.Query("severity")) {
		filter.Severities = append(filter.Severities, domain.Severity(s))
	}
	incidents, err := h.incidents.ListIncidents(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.IncidentSummary, 0, len(incidents))
	for i := range incidents {
		items = append(items, incidentSummary(&incidents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetIncident GET /incidents/:id.
func (h *IncidentsHandler) GetIncident(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	view, err := h.incidents.GetIncident(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentDetail(view.Incident, view.Timeline)})
}

// UpdateIncident PUT /incidents/:id.
func (h *IncidentsHandler) UpdateIncident(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateIncidentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	incident, err := h.incidents.UpdateIncident(c.UserContext(), actor, c.Params("id"), service.IncidentUpdateInput{
		Title:                 req.Title,
		Description:           req.Description,
		Category:              req.Category,
		Severity:              req.Severity,
		Status:                req.Status,
		AssigneeID:            req.AssigneeID,
		DetectionMethod:       req.DetectionMethod,
		ConfidentialityImpact: req.ConfidentialityImpact,
		IntegrityImpact:       req.IntegrityImpact,
		AvailabilityImpact:    req.AvailabilityImpact,
		RootCause:             req.RootCause,
		ResolutionSummary:     req.ResolutionSummary,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": incidentSummary(incident)})
}

// AddTimelineEntry POST /incidents/:id/timeline.
func (h *IncidentsHandler) AddTimelineEntry(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTimelineEntryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	entry, err := h.incidents.AddTimelineEntry(c.UserContext(), actor, c.Params("id"), req.Action, req.Description, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": timelineResponse(entry)})
}
