package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/sla"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler serves ticket endpoints for every role. Visibility is decided by the service.
type TicketsHandler struct {
	tickets     *service.TicketService
	conversions *service.ConversionService
	attachments service.AttachmentCollaborator
	now         func() time.Time
}

// NewTicketsHandler constructs handler. attachments may be nil.
func NewTicketsHandler(tickets *service.TicketService, conversions *service.ConversionService, attachments service.AttachmentCollaborator) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, conversions: conversions, attachments: attachments, now: time.Now}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Branch:         req.Branch,
		Category:       req.Category,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		AffectedSystem: req.AffectedSystem,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket, false)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	filter := service.TicketListFilter{
		Breached:   strings.EqualFold(c.Query("breached"), "true"),
		SearchTerm: optionalQuery(c, "q"),
		Limit:      limit,
		Offset:     offset,
	}
	for _, s := range parseList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range parseList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}

	tickets, err := h.tickets.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	now := h.now()
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i], sla.IsBreached(&tickets[i], now)))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	var attachments []domain.Attachment
	if h.attachments != nil {
		attachments, err = h.attachments.ListAttachments(c.UserContext(), domain.ResourceTicket, view.Ticket.ID)
		if err != nil {
			return apperrors.NewDependencyFailure("attachments", err)
		}
	}

	comments := make([]dto.CommentResponse, 0, len(view.Comments))
	for i := range view.Comments {
		comments = append(comments, commentResponse(&view.Comments[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketDetailResponse{
		TicketSummary: ticketSummary(view.Ticket, view.SLABreached),
		Description:   view.Ticket.Description,
		ResolvedAt:    view.Ticket.ResolvedAt,
		ClosedAt:      view.Ticket.ClosedAt,
		Comments:      comments,
		Attachments:   attachmentResponses(attachments),
	}})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.UpdateTicket(c.UserContext(), actor, c.Params("id"), service.TicketUpdateInput{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Priority:       req.Priority,
		Status:         req.Status,
		AssigneeID:     req.AssigneeID,
		AffectedSystem: req.AffectedSystem,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket, sla.IsBreached(ticket, h.now()))})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	comment, err := h.tickets.AddComment(c.UserContext(), actor, c.Params("id"), req.Body, req.Internal)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// ConvertTicket POST /tickets/:id/convert.
func (h *TicketsHandler) ConvertTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.ConvertTicketRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	incident, err := h.conversions.Convert(c.UserContext(), actor, c.Params("id"), service.ConvertInput{
		Category:    req.Category,
		Severity:    req.Severity,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": incidentSummary(incident)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.tickets.DeleteTicket(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
