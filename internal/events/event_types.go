package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketUpdated         EventType = "ticket_updated"
	EventTicketCommented       EventType = "ticket_commented"
	EventTicketDeleted         EventType = "ticket_deleted"
	EventTicketConverted       EventType = "ticket_converted"
	EventIncidentCreated       EventType = "incident_created"
	EventIncidentUpdated       EventType = "incident_updated"
	EventIncidentTimelineAdded EventType = "incident_timeline_added"
	EventSLARuleChanged        EventType = "sla_rule_changed"
	EventActorChanged          EventType = "actor_changed"
	EventNotificationCreated   EventType = "notification_created"
)

// Event represents a domain event emitted after a mutation has been recorded.
type Event struct {
	ID           string              `json:"id"`
	Type         EventType           `json:"type"`
	ResourceType domain.ResourceType `json:"resource_type"`
	ResourceID   string              `json:"resource_id"`
	ActorID      string              `json:"actor_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Payload      interface{}         `json:"payload"`
}

// NotificationCreatedPayload carries a persisted notification to delivery workers.
type NotificationCreatedPayload struct {
	Notification domain.Notification `json:"notification"`
}

// MutationPayload mirrors the audit details of the mutation that produced the event.
type MutationPayload struct {
	Action  string         `json:"action"`
	Details map[string]any `json:"details,omitempty"`
}
