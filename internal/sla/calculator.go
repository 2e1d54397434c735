package sla

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// RuleSource looks up the active rule for a priority, returning repository.ErrNotFound when none exists.
type RuleSource interface {
	ActiveByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLARule, error)
}

// Calculator derives resolution deadlines from the active rule table.
type Calculator struct {
	rules RuleSource
}

// NewCalculator builds a calculator over rules.
func NewCalculator(rules RuleSource) *Calculator {
	return &Calculator{rules: rules}
}

// DueDate returns now plus the resolution window of the active rule for priority, or nil when the
// priority has no active rule. A nil deadline means the ticket is not tracked.
func (c *Calculator) DueDate(ctx context.Context, priority domain.TicketPriority, now time.Time) (*time.Time, error) {
	rule, err := c.rules.ActiveByPriority(ctx, priority)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	due := now.Add(rule.ResolutionWindow())
	return &due, nil
}

// IsBreached reports whether ticket is still open and past its deadline.
func IsBreached(ticket *domain.Ticket, now time.Time) bool {
	if ticket == nil || ticket.SLADueAt == nil || !ticket.Status.Open() {
		return false
	}
	return now.After(*ticket.SLADueAt)
}
