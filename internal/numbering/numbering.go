package numbering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/repository"
)

const (
	ticketPrefix   = "TKT"
	incidentPrefix = "INC"
	width          = 6
)

// Counter hands out the next value for a scope atomically.
type Counter interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// Service formats human-readable sequence numbers scoped by branch and, for incidents, year.
type Service struct {
	counter Counter
}

// NewService builds a numbering service over counter.
func NewService(counter Counter) *Service {
	return &Service{counter: counter}
}

// TicketScope returns the counter scope for tickets in branch.
func TicketScope(branch string) string {
	return ticketPrefix + "-" + strings.ToUpper(branch)
}

// IncidentScope returns the counter scope for incidents in branch during the year of at.
func IncidentScope(branch string, at time.Time) string {
	if branch == "" {
		return fmt.Sprintf("%s-%d", incidentPrefix, at.Year())
	}
	return fmt.Sprintf("%s-%s-%d", incidentPrefix, strings.ToUpper(branch), at.Year())
}

// Format renders value within scope as a fixed-width identifier.
func Format(scope string, value int64) string {
	return fmt.Sprintf("%s-%0*d", scope, width, value)
}

// NextTicketNumber returns the next ticket number for branch.
func (s *Service) NextTicketNumber(ctx context.Context, branch string) (string, error) {
	return s.next(ctx, TicketScope(branch))
}

// NextIncidentNumber returns the next incident number for branch in the year of at.
func (s *Service) NextIncidentNumber(ctx context.Context, branch string, at time.Time) (string, error) {
	return s.next(ctx, IncidentScope(branch, at))
}

func (s *Service) next(ctx context.Context, scope string) (string, error) {
	value, err := s.counter.Next(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("next sequence for %s: %w", scope, err)
	}
	return Format(scope, value), nil
}

// WithRetry draws a number and hands it to persist. A repository.ErrDuplicateNumber from persist is
// retried exactly once with a freshly drawn number; any other outcome is returned as is.
func WithRetry(ctx context.Context, draw func(ctx context.Context) (string, error), persist func(number string) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var number string
		number, err = draw(ctx)
		if err != nil {
			return err
		}
		err = persist(number)
		if !errors.Is(err, repository.ErrDuplicateNumber) {
			return err
		}
	}
	return err
}
