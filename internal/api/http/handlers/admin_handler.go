package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// BranchLister returns the valid branch acronyms.
type BranchLister interface {
	ValidBranchAcronyms(ctx context.Context) ([]string, error)
}

// AdminHandler serves actor administration, the audit trail, reconciliation markers and reference data.
type AdminHandler struct {
	actors      *service.ActorService
	audit       *service.AuditService
	conversions *service.ConversionService
	branches    BranchLister
}

// NewAdminHandler constructs handler.
func NewAdminHandler(actors *service.ActorService, audit *service.AuditService, conversions *service.ConversionService, branches BranchLister) *AdminHandler {
	return &AdminHandler{actors: actors, audit: audit, conversions: conversions, branches: branches}
}

// CreateActor POST /actors.
func (h *AdminHandler) CreateActor(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateActorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	created, err := h.actors.CreateActor(c.UserContext(), actor, service.ActorCreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Branches: req.Branches,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": actorResponse(created)})
}

// ListActors GET /actors.
func (h *AdminHandler) ListActors(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	filter := service.ActorListFilter{Limit: limit, Offset: offset}
	if role := c.Query("role"); role != "" {
		r := domain.Role(role)
		filter.Role = &r
	}
	if status := c.Query("status"); status != "" {
		s := domain.ActorStatus(status)
		filter.Status = &s
	}
	actors, err := h.actors.ListActors(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ActorResponse, 0, len(actors))
	for i := range actors {
		items = append(items, actorResponse(&actors[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetActor GET /actors/:id.
func (h *AdminHandler) GetActor(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	target, err := h.actors.GetActor(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": actorResponse(target)})
}

// UpdateActor PUT /actors/:id.
func (h *AdminHandler) UpdateActor(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateActorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.actors.UpdateActor(c.UserContext(), actor, c.Params("id"), service.ActorUpdateInput{
		Name:     req.Name,
		Role:     req.Role,
		Status:   req.Status,
		Branches: req.Branches,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": actorResponse(updated)})
}

// ListAudit GET /audit.
func (h *AdminHandler) ListAudit(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	filter := service.AuditFilter{
		ResourceID: optionalQuery(c, "resource_id"),
		ActorID:    optionalQuery(c, "actor_id"),
		Limit:      limit,
		Offset:     offset,
	}
	if rt := optionalQuery(c, "resource_type"); rt != nil {
		resourceType := domain.ResourceType(*rt)
		filter.ResourceType = &resourceType
	}
	entries, err := h.audit.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.AuditEntryResponse{
			ID:           e.ID,
			ActorID:      e.ActorID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      e.Details,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListReconciliations GET /admin/reconciliations.
func (h *AdminHandler) ListReconciliations(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	pendingOnly := !strings.EqualFold(c.Query("all"), "true")
	markers, err := h.conversions.ListReconciliations(c.UserContext(), actor, pendingOnly, parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.ReconciliationResponse, 0, len(markers))
	for _, m := range markers {
		items = append(items, dto.ReconciliationResponse{
			ID:         m.ID,
			IncidentID: m.IncidentID,
			TicketID:   m.TicketID,
			FailedStep: m.FailedStep,
			Error:      m.Error,
			CreatedAt:  m.CreatedAt,
			ResolvedAt: m.ResolvedAt,
			Abandoned:  m.Abandoned,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListBranches GET /branches.
func (h *AdminHandler) ListBranches(c *fiber.Ctx) error {
	if _, err := currentActor(c); err != nil {
		return err
	}
	branches, err := h.branches.ValidBranchAcronyms(c.UserContext())
	if err != nil {
		return apperrors.NewDependencyFailure("branch directory", err)
	}
	if branches == nil {
		branches = []string{}
	}
	return c.JSON(fiber.Map{"data": branches})
}
