package domain

import "time"

// ConversionStep names a step of ticket-to-incident conversion.
type ConversionStep string

const (
	StepCopyComments ConversionStep = "copy_comments"
	StepFreezeTicket ConversionStep = "freeze_ticket"
	StepTimeline     ConversionStep = "timeline"
)

// Reconciliation marks a conversion that stopped after its incident was persisted.
type Reconciliation struct {
	ID         string
	IncidentID string
	TicketID   string
	FailedStep ConversionStep
	Error      string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	// Abandoned is set when the conversion can no longer be completed, for
	// example because the ticket was closed first. Error then holds the reason.
	Abandoned bool
}
