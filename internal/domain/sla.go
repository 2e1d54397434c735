package domain

import "time"

// SLARule defines the deadline policy for one priority.
type SLARule struct {
	ID              string
	Priority        TicketPriority
	ResponseMinutes int
	ResolutionHours int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResolutionWindow returns the resolution time as a duration.
func (r *SLARule) ResolutionWindow() time.Duration {
	return time.Duration(r.ResolutionHours) * time.Hour
}
