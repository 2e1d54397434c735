package domain

import "time"

// ResourceType names what an audit entry or notification refers to.
type ResourceType string

const (
	ResourceTicket   ResourceType = "ticket"
	ResourceIncident ResourceType = "incident"
	ResourceSLARule  ResourceType = "sla_rule"
	ResourceActor    ResourceType = "actor"
)

// AuditLogEntry is the append-only record of who did what, when.
type AuditLogEntry struct {
	ID           string
	ActorID      string
	Action       string
	ResourceType ResourceType
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}

// NotificationType tags notifications.
type NotificationType string

const (
	NotifyTicketCreated    NotificationType = "ticket_created"
	NotifyTicketAssigned   NotificationType = "ticket_assigned"
	NotifyTicketUpdated    NotificationType = "ticket_updated"
	NotifyTicketComment    NotificationType = "ticket_comment"
	NotifyTicketConverted  NotificationType = "ticket_converted"
	NotifyIncidentCreated  NotificationType = "incident_created"
	NotifyIncidentAssigned NotificationType = "incident_assigned"
	NotifyIncidentUpdated  NotificationType = "incident_updated"
	NotifyIncidentTimeline NotificationType = "incident_timeline"
)

// Notification is addressed to a single actor.
type Notification struct {
	ID           string
	UserID       string
	Type         NotificationType
	Title        string
	Message      string
	ResourceType ResourceType
	ResourceID   string
	Read         bool
	CreatedAt    time.Time
	ReadAt       *time.Time
}

// Audit action tags.
const (
	AuditTicketCreated         = "TICKET_CREATED"
	AuditTicketUpdated         = "TICKET_UPDATED"
	AuditTicketCommented       = "TICKET_COMMENTED"
	AuditTicketDeleted         = "TICKET_DELETED"
	AuditTicketConverted       = "TICKET_CONVERTED"
	AuditIncidentCreated       = "INCIDENT_CREATED"
	AuditIncidentUpdated       = "INCIDENT_UPDATED"
	AuditIncidentTimelineAdded = "INCIDENT_TIMELINE_ADDED"
	AuditSLARuleCreated        = "SLA_RULE_CREATED"
	AuditSLARuleUpdated        = "SLA_RULE_UPDATED"
	AuditSLARuleDeleted        = "SLA_RULE_DELETED"
	AuditActorCreated          = "ACTOR_CREATED"
	AuditActorUpdated          = "ACTOR_UPDATED"
	AuditConversionReconciled  = "CONVERSION_RECONCILED"
	AuditConversionAbandoned   = "CONVERSION_ABANDONED"
)

// SystemActorID identifies mutations performed by background workers.
const SystemActorID = "system"
