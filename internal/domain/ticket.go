package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew                 TicketStatus = "new"
	TicketStatusAssigned            TicketStatus = "assigned"
	TicketStatusInProgress          TicketStatus = "in_progress"
	TicketStatusWaitingForUser      TicketStatus = "waiting_for_user"
	TicketStatusResolved            TicketStatus = "resolved"
	TicketStatusClosed              TicketStatus = "closed"
	TicketStatusConvertedToIncident TicketStatus = "converted_to_incident"
)

var ticketStatusRank = map[TicketStatus]int{
	TicketStatusNew:            0,
	TicketStatusAssigned:       1,
	TicketStatusInProgress:     2,
	TicketStatusWaitingForUser: 3,
	TicketStatusResolved:       4,
	TicketStatusClosed:         5,
}

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	_, ok := ticketStatusRank[s]
	return ok || s == TicketStatusConvertedToIncident
}

// Terminal reports whether no further transition is possible.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusConvertedToIncident
}

// Locked reports whether the ticket is frozen against ordinary edits.
func (s TicketStatus) Locked() bool {
	return s == TicketStatusResolved || s.Terminal()
}

// Open reports whether the ticket still counts against its SLA.
func (s TicketStatus) Open() bool {
	return !s.Locked()
}

// CanTransitionTo reports whether next is a forward move along the main path.
// converted_to_incident is only reachable through conversion.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	if s.Terminal() {
		return false
	}
	from, ok := ticketStatusRank[s]
	if !ok {
		return false
	}
	to, ok := ticketStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Number         string
	Branch         string
	Category       string
	Title          string
	Description    string
	Priority       TicketPriority
	Status         TicketStatus
	CreatorID      string
	AssigneeID     *string
	AffectedSystem string
	SLADueAt       *time.Time
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Comment captures a message in a ticket thread.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorRole Role
	Body       string
	Internal   bool
	CreatedAt  time.Time
}
