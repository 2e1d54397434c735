package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateIncidentRequest payload.
type CreateIncidentRequest struct {
	Branch                string                 `json:"branch"`
	Category              string                 `json:"category"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description"`
	Severity              domain.Severity        `json:"severity"`
	DetectionMethod       domain.DetectionMethod `json:"detection_method"`
	ConfidentialityImpact domain.Impact          `json:"confidentiality_impact"`
	IntegrityImpact       domain.Impact          `json:"integrity_impact"`
	AvailabilityImpact    domain.Impact          `json:"availability_impact"`
	AssigneeID            string                 `json:"assignee_id"`
}

// UpdateIncidentRequest payload. Omitted fields are left unchanged.
type UpdateIncidentRequest struct {
	Title                 *string                 `json:"title"`
	Description           *string                 `json:"description"`
	Category              *string                 `json:"category"`
	Severity              *domain.Severity        `json:"severity"`
	Status                *domain.IncidentStatus  `json:"status"`
	AssigneeID            *string                 `json:"assignee_id"`
	DetectionMethod       *domain.DetectionMethod `json:"detection_method"`
	ConfidentialityImpact *domain.Impact          `json:"confidentiality_impact"`
	IntegrityImpact       *domain.Impact          `json:"integrity_impact"`
	AvailabilityImpact    *domain.Impact          `json:"availability_impact"`
	RootCause             *string                 `json:"root_cause"`
	ResolutionSummary     *string                 `json:"resolution_summary"`
}

// CreateTimelineEntryRequest payload.
type CreateTimelineEntryRequest struct {
	Action      domain.TimelineAction `json:"action"`
	Description string                `json:"description"`
	Internal    bool                  `json:"internal"`
}

// IncidentSummary response.
type IncidentSummary struct {
	ID             string                `json:"id"`
	Number         string                `json:"number"`
	Branch         string                `json:"branch,omitempty"`
	Category       string                `json:"category"`
	Title          string                `json:"title"`
	Severity       domain.Severity       `json:"severity"`
	Status         domain.IncidentStatus `json:"status"`
	AssigneeID     *string               `json:"assignee_id"`
	SourceTicketID *string               `json:"source_ticket_id"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// IncidentDetailResponse provides full incident info with the timeline the caller may see.
type IncidentDetailResponse struct {
	IncidentSummary
	Description           string                  `json:"description"`
	DetectionMethod       domain.DetectionMethod  `json:"detection_method"`
	ConfidentialityImpact domain.Impact           `json:"confidentiality_impact"`
	IntegrityImpact       domain.Impact           `json:"integrity_impact"`
	AvailabilityImpact    domain.Impact           `json:"availability_impact"`
	CreatorID             string                  `json:"creator_id"`
	AffectedAsset         string                  `json:"affected_asset,omitempty"`
	AffectedUserID        *string                 `json:"affected_user_id"`
	RootCause             *string                 `json:"root_cause"`
	ResolutionSummary     *string                 `json:"resolution_summary"`
	TriagedAt             *time.Time              `json:"triaged_at"`
	ContainedAt           *time.Time              `json:"contained_at"`
	RecoveredAt           *time.Time              `json:"recovered_at"`
	ClosedAt              *time.Time              `json:"closed_at"`
	Timeline              []TimelineEntryResponse `json:"timeline"`
}

// TimelineEntryResponse represents one timeline entry.
type TimelineEntryResponse struct {
	ID          string                `json:"id"`
	AuthorID    string                `json:"author_id"`
	Action      domain.TimelineAction `json:"action"`
	Description string                `json:"description"`
	Internal    bool                  `json:"internal"`
	CreatedAt   time.Time             `json:"created_at"`
}
