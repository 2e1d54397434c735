package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Branch         string                `json:"branch"`
	Category       string                `json:"category"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	AffectedSystem string                `json:"affected_system"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged; an empty assignee_id unassigns.
type UpdateTicketRequest struct {
	Title          *string                `json:"title"`
	Description    *string                `json:"description"`
	Category       *string                `json:"category"`
	Priority       *domain.TicketPriority `json:"priority"`
	Status         *domain.TicketStatus   `json:"status"`
	AssigneeID     *string                `json:"assignee_id"`
	AffectedSystem *string                `json:"affected_system"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// ConvertTicketRequest payload. Every field is optional.
type ConvertTicketRequest struct {
	Category    string          `json:"category"`
	Severity    domain.Severity `json:"severity"`
	Description string          `json:"description"`
	AssigneeID  string          `json:"assignee_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	Number         string                `json:"number"`
	Branch         string                `json:"branch"`
	Category       string                `json:"category"`
	Title          string                `json:"title"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	CreatorID      string                `json:"creator_id"`
	AssigneeID     *string               `json:"assignee_id"`
	AffectedSystem string                `json:"affected_system,omitempty"`
	SLADueAt       *time.Time            `json:"sla_due_at"`
	SLABreached    bool                  `json:"sla_breached"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with the comments the caller may see.
type TicketDetailResponse struct {
	TicketSummary
	Description string               `json:"description"`
	ResolvedAt  *time.Time           `json:"resolved_at"`
	ClosedAt    *time.Time           `json:"closed_at"`
	Comments    []CommentResponse    `json:"comments"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// CommentResponse represents one thread comment.
type CommentResponse struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	AuthorRole domain.Role `json:"author_role"`
	Body       string      `json:"body"`
	Internal   bool        `json:"internal"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
