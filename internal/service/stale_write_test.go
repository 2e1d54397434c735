package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// interleavedTickets runs beforeUpdate once, between a service's read and its write.
type interleavedTickets struct {
	repository.TicketRepository
	beforeUpdate func()
}

func (r *interleavedTickets) Update(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}
	return r.TicketRepository.Update(ctx, ticket, from)
}

// interleavedIncidents runs afterGet once after a read and beforeUpdate once before a write.
type interleavedIncidents struct {
	repository.IncidentRepository
	afterGet     func()
	beforeUpdate func()
}

func (r *interleavedIncidents) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	incident, err := r.IncidentRepository.GetByID(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return incident, err
}

func (r *interleavedIncidents) Update(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}
	return r.IncidentRepository.Update(ctx, incident, from)
}

func TestTicketUpdateCannotUndoConcurrentConversion(t *testing.T) {
	var tickets *interleavedTickets
	f := newFixture(t, func(s *repository.Store) {
		tickets = &interleavedTickets{TicketRepository: s.Tickets}
		s.Tickets = tickets
	})
	ticket := f.createTicket(f.user)

	var incident *domain.Incident
	tickets.beforeUpdate = func() {
		var err error
		incident, err = f.conversions.Convert(f.ctx, f.officer, ticket.ID, ConvertInput{})
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	_, err := f.tickets.UpdateTicket(f.ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)})
	assertCode(t, err, apperrors.CodeImmutable)

	current, err := f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != domain.TicketStatusConvertedToIncident {
		t.Fatalf("converted ticket moved back to %s", current.Status)
	}
	if incident == nil || incident.SourceTicketID == nil || *incident.SourceTicketID != ticket.ID {
		t.Fatalf("incident = %+v", incident)
	}

	var updates int
	for _, e := range f.auditFor(ticket.ID) {
		if e.Action == domain.AuditTicketUpdated {
			updates++
		}
	}
	if updates != 0 {
		t.Fatalf("rejected update was audited %d times", updates)
	}
}

func TestTicketUpdateReportsConcurrentStatusChange(t *testing.T) {
	var tickets *interleavedTickets
	f := newFixture(t, func(s *repository.Store) {
		tickets = &interleavedTickets{TicketRepository: s.Tickets}
		s.Tickets = tickets
	})
	ticket := f.createTicket(f.user)

	tickets.beforeUpdate = func() {
		if _, err := f.tickets.UpdateTicket(f.ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusWaitingForUser)}); err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	_, err := f.tickets.UpdateTicket(f.ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)})
	domainErr := assertCode(t, err, apperrors.CodeConflict)
	if domainErr.Details["status"] != domain.TicketStatusWaitingForUser {
		t.Fatalf("details = %v", domainErr.Details)
	}

	current, _ := f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if current.Status != domain.TicketStatusWaitingForUser {
		t.Fatalf("status = %s, want waiting_for_user", current.Status)
	}
}

func TestIncidentUpdateCannotRegressStatus(t *testing.T) {
	cases := []struct {
		name       string
		concurrent domain.IncidentStatus
		code       string
	}{
		{"closed first", domain.IncidentStatusClosed, apperrors.CodeImmutable},
		{"moved further first", domain.IncidentStatusRecovered, apperrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var incidents *interleavedIncidents
			f := newFixture(t, func(s *repository.Store) {
				incidents = &interleavedIncidents{IncidentRepository: s.Incidents}
				s.Incidents = incidents
			})
			incident := f.createIncident(f.officer)

			incidents.beforeUpdate = func() {
				if _, err := f.incidents.UpdateIncident(f.ctx, f.officer2, incident.ID, IncidentUpdateInput{Status: ptr(tc.concurrent)}); err != nil {
					t.Fatalf("concurrent update: %v", err)
				}
			}
			_, err := f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{Status: ptr(domain.IncidentStatusInvestigating)})
			assertCode(t, err, tc.code)

			current, _ := f.store.Incidents.GetByID(f.ctx, incident.ID)
			if current.Status != tc.concurrent {
				t.Fatalf("status = %s, want %s", current.Status, tc.concurrent)
			}
		})
	}
}

func TestTimelineEntryRejectedOnceIncidentCloses(t *testing.T) {
	var incidents *interleavedIncidents
	f := newFixture(t, func(s *repository.Store) {
		incidents = &interleavedIncidents{IncidentRepository: s.Incidents}
		s.Incidents = incidents
	})
	incident := f.createIncident(f.officer)

	incidents.afterGet = func() {
		if _, err := f.incidents.UpdateIncident(f.ctx, f.officer2, incident.ID, IncidentUpdateInput{Status: ptr(domain.IncidentStatusClosed)}); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	_, err := f.incidents.AddTimelineEntry(f.ctx, f.officer, incident.ID, domain.TimelineNote, "late note", false)
	assertCode(t, err, apperrors.CodeImmutable)

	view, err := f.incidents.GetIncident(f.ctx, f.admin, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	for _, e := range view.Timeline {
		if e.Description == "late note" {
			t.Fatalf("note appended to a closed incident")
		}
	}
}
