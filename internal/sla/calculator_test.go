package sla

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

func TestDueDate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, rule := range []domain.SLARule{
		{Priority: domain.TicketPriorityUrgent, ResponseMinutes: 60, ResolutionHours: 4, Active: true, CreatedAt: now},
		{Priority: domain.TicketPriorityLow, ResponseMinutes: 480, ResolutionHours: 24, Active: true, CreatedAt: now},
		{Priority: domain.TicketPriorityHigh, ResponseMinutes: 120, ResolutionHours: 8, Active: false, CreatedAt: now},
	} {
		rule := rule
		if err := store.SLARules.Create(ctx, &rule); err != nil {
			t.Fatalf("seed rule: %v", err)
		}
	}

	calc := NewCalculator(store.SLARules)
	cases := []struct {
		name     string
		priority domain.TicketPriority
		want     *time.Time
	}{
		{"urgent", domain.TicketPriorityUrgent, ptr(now.Add(4 * time.Hour))},
		{"low", domain.TicketPriorityLow, ptr(now.Add(24 * time.Hour))},
		{"inactive rule", domain.TicketPriorityHigh, nil},
		{"no rule", domain.TicketPriorityMedium, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.DueDate(ctx, tc.priority, now)
			if err != nil {
				t.Fatalf("DueDate: %v", err)
			}
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %v, want nil", *got)
				}
				return
			}
			if got == nil || !got.Equal(*tc.want) {
				t.Fatalf("got %v, want %v", got, *tc.want)
			}
		})
	}
}

func TestIsBreached(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name   string
		ticket *domain.Ticket
		want   bool
	}{
		{"open and overdue", &domain.Ticket{Status: domain.TicketStatusInProgress, SLADueAt: &past}, true},
		{"open within", &domain.Ticket{Status: domain.TicketStatusAssigned, SLADueAt: &future}, false},
		{"exactly due", &domain.Ticket{Status: domain.TicketStatusNew, SLADueAt: &now}, false},
		{"resolved overdue", &domain.Ticket{Status: domain.TicketStatusResolved, SLADueAt: &past}, false},
		{"converted overdue", &domain.Ticket{Status: domain.TicketStatusConvertedToIncident, SLADueAt: &past}, false},
		{"untracked", &domain.Ticket{Status: domain.TicketStatusNew}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBreached(tc.ticket, now); got != tc.want {
				t.Fatalf("IsBreached = %v, want %v", got, tc.want)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
