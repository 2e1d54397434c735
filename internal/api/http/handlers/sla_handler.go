package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// SLAHandler serves SLA rule administration.
type SLAHandler struct {
	rules *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(rules *service.SLAService) *SLAHandler {
	return &SLAHandler{rules: rules}
}

// ListRules GET /sla.
func (h *SLAHandler) ListRules(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	rules, err := h.rules.ListRules(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.SLARuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, slaRuleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateRule POST /sla.
func (h *SLAHandler) CreateRule(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateSLARuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.rules.CreateRule(c.UserContext(), actor, service.SLARuleInput{
		Priority:        req.Priority,
		ResponseMinutes: req.ResponseMinutes,
		ResolutionHours: req.ResolutionHours,
		Active:          req.Active,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": slaRuleResponse(rule)})
}

// UpdateRule PUT /sla/:id.
func (h *SLAHandler) UpdateRule(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateSLARuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.rules.UpdateRule(c.UserContext(), actor, c.Params("id"), service.SLARuleUpdateInput{
		Priority:        req.Priority,
		ResponseMinutes: req.ResponseMinutes,
		ResolutionHours: req.ResolutionHours,
		Active:          req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaRuleResponse(rule)})
}

// DeleteRule DELETE /sla/:id.
func (h *SLAHandler) DeleteRule(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.rules.DeleteRule(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
