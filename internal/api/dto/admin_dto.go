package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateSLARuleRequest payload. Active defaults to true.
type CreateSLARuleRequest struct {
	Priority        domain.TicketPriority `json:"priority"`
	ResponseMinutes int                   `json:"response_minutes"`
	ResolutionHours int                   `json:"resolution_hours"`
	Active          *bool                 `json:"active"`
}

// UpdateSLARuleRequest payload.
type UpdateSLARuleRequest struct {
	Priority        *domain.TicketPriority `json:"priority"`
	ResponseMinutes *int                   `json:"response_minutes"`
	ResolutionHours *int                   `json:"resolution_hours"`
	Active          *bool                  `json:"active"`
}

// SLARuleResponse represents a rule.
type SLARuleResponse struct {
	ID              string                `json:"id"`
	Priority        domain.TicketPriority `json:"priority"`
	ResponseMinutes int                   `json:"response_minutes"`
	ResolutionHours int                   `json:"resolution_hours"`
	Active          bool                  `json:"active"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CreateActorRequest payload.
type CreateActorRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	Branches []string    `json:"branches"`
}

// UpdateActorRequest payload.
type UpdateActorRequest struct {
	Name     *string             `json:"name"`
	Role     *domain.Role        `json:"role"`
	Status   *domain.ActorStatus `json:"status"`
	Branches *[]string           `json:"branches"`
}

// ActorResponse represents an actor.
type ActorResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Role      domain.Role        `json:"role"`
	Status    domain.ActorStatus `json:"status"`
	Branches  []string           `json:"branches"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NotificationResponse represents an inbox item.
type NotificationResponse struct {
	ID           string                  `json:"id"`
	Type         domain.NotificationType `json:"type"`
	Title        string                  `json:"title"`
	Message      string                  `json:"message"`
	ResourceType domain.ResourceType     `json:"resource_type"`
	ResourceID   string                  `json:"resource_id"`
	Read         bool                    `json:"read"`
	CreatedAt    time.Time               `json:"created_at"`
	ReadAt       *time.Time              `json:"read_at"`
}

// AuditEntryResponse represents an audit record.
type AuditEntryResponse struct {
	ID           string              `json:"id"`
	ActorID      string              `json:"actor_id"`
	Action       string              `json:"action"`
	ResourceType domain.ResourceType `json:"resource_type"`
	ResourceID   string              `json:"resource_id"`
	Details      map[string]any      `json:"details,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// ReconciliationResponse represents a partial-conversion marker.
type ReconciliationResponse struct {
	ID         string                `json:"id"`
	IncidentID string                `json:"incident_id"`
	TicketID   string                `json:"ticket_id"`
	FailedStep domain.ConversionStep `json:"failed_step"`
	Error      string                `json:"error"`
	CreatedAt  time.Time             `json:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at"`
	Abandoned  bool                  `json:"abandoned"`
}
