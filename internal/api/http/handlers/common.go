package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const maxPageSize = 200

func currentActor(c *fiber.Ctx) (*domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}

// pagination reads page and page_size and returns limit and offset.
func pagination(c *fiber.Ctx) (int, int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func ticketSummary(ticket *domain.Ticket, breached bool) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		Number:         ticket.Number,
		Branch:         ticket.Branch,
		Category:       ticket.Category,
		Title:          ticket.Title,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		CreatorID:      ticket.CreatorID,
		AssigneeID:     ticket.AssigneeID,
		AffectedSystem: ticket.AffectedSystem,
		SLADueAt:       ticket.SLADueAt,
		SLABreached:    breached,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         comment.ID,
		AuthorID:   comment.AuthorID,
		AuthorRole: comment.AuthorRole,
		Body:       comment.Body,
		Internal:   comment.Internal,
		CreatedAt:  comment.CreatedAt,
	}
}

func attachmentResponses(items []domain.Attachment) []dto.AttachmentResponse {
	resp := make([]dto.AttachmentResponse, 0, len(items))
	for _, att := range items {
		resp = append(resp, dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
			CreatedAt: att.CreatedAt,
		})
	}
	return resp
}

func incidentSummary(incident *domain.Incident) dto.IncidentSummary {
	return dto.IncidentSummary{
		ID:             incident.ID,
		Number:         incident.Number,
		Branch:         incident.Branch,
		Category:       incident.Category,
		Title:          incident.Title,
		Severity:       incident.Severity,
		Status:         incident.Status,
		AssigneeID:     incident.AssigneeID,
		SourceTicketID: incident.SourceTicketID,
		CreatedAt:      incident.CreatedAt,
		UpdatedAt:      incident.UpdatedAt,
	}
}

func incidentDetail(incident *domain.Incident, timeline []domain.TimelineEntry) dto.IncidentDetailResponse {
	entries := make([]dto.TimelineEntryResponse, 0, len(timeline))
	for i := range timeline {
		entries = append(entries, timelineResponse(&timeline[i]))
	}
	return dto.IncidentDetailResponse{
		IncidentSummary:       incidentSummary(incident),
		Description:           incident.Description,
		DetectionMethod:       incident.DetectionMethod,
		ConfidentialityImpact: incident.ConfidentialityImpact,
		IntegrityImpact:       incident.IntegrityImpact,
		AvailabilityImpact:    incident.AvailabilityImpact,
		CreatorID:             incident.CreatorID,
		AffectedAsset:         incident.AffectedAsset,
		AffectedUserID:        incident.AffectedUserID,
		RootCause:             incident.RootCause,
		ResolutionSummary:     incident.ResolutionSummary,
		TriagedAt:             incident.TriagedAt,
		ContainedAt:           incident.ContainedAt,
		RecoveredAt:           incident.RecoveredAt,
		ClosedAt:              incident.ClosedAt,
		Timeline:              entries,
	}
}

func timelineResponse(entry *domain.TimelineEntry) dto.TimelineEntryResponse {
	return dto.TimelineEntryResponse{
		ID:          entry.ID,
		AuthorID:    entry.AuthorID,
		Action:      entry.Action,
		Description: entry.Description,
		Internal:    entry.Internal,
		CreatedAt:   entry.CreatedAt,
	}
}

func slaRuleResponse(rule *domain.SLARule) dto.SLARuleResponse {
	return dto.SLARuleResponse{
		ID:              rule.ID,
		Priority:        rule.Priority,
		ResponseMinutes: rule.ResponseMinutes,
		ResolutionHours: rule.ResolutionHours,
		Active:          rule.Active,
		CreatedAt:       rule.CreatedAt,
		UpdatedAt:       rule.UpdatedAt,
	}
}

func actorResponse(actor *domain.Actor) dto.ActorResponse {
	branches := actor.Branches
	if branches == nil {
		branches = []string{}
	}
	return dto.ActorResponse{
		ID:        actor.ID,
		Name:      actor.Name,
		Email:     actor.Email,
		Role:      actor.Role,
		Status:    actor.Status,
		Branches:  branches,
		CreatedAt: actor.CreatedAt,
		UpdatedAt: actor.UpdatedAt,
	}
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:           n.ID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
		ReadAt:       n.ReadAt,
	}
}
