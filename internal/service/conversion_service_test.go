package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// flakyTickets fails MarkConverted a fixed number of times before delegating.
type flakyTickets struct {
	repository.TicketRepository
	failures int
}

func (f *flakyTickets) MarkConverted(ctx context.Context, id string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return f.TicketRepository.MarkConverted(ctx, id)
}

func seedThread(t *testing.T, f *fixture, ticket *domain.Ticket) {
	t.Helper()
	thread := []struct {
		actor    *domain.Actor
		body     string
		internal bool
	}{
		{f.user, "It started after the password change.", false},
		{f.agent, "Token prompts look like a phishing proxy.", false},
		{f.agent, "Escalating, source IP is on a blocklist.", true},
	}
	for _, c := range thread {
		if _, err := f.tickets.AddComment(f.ctx, c.actor, ticket.ID, c.body, c.internal); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}
}

func countActions(entries []domain.TimelineEntry) map[domain.TimelineAction]int {
	out := map[domain.TimelineAction]int{}
	for _, e := range entries {
		out[e.Action]++
	}
	return out
}

func TestConvertCopiesHistoryAndFreezesTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)
	seedThread(t, f, ticket)

	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{
		Category: "phishing",
		Severity: domain.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if incident.Number != "INC-HQ-2026-000001" {
		t.Errorf("number = %s", incident.Number)
	}
	if incident.AffectedAsset != "VPN" {
		t.Errorf("affected asset = %q, want VPN", incident.AffectedAsset)
	}
	if incident.AffectedUserID == nil || *incident.AffectedUserID != f.user.ID {
		t.Errorf("affected user = %v, want ticket creator", incident.AffectedUserID)
	}
	if incident.SourceTicketID == nil || *incident.SourceTicketID != ticket.ID {
		t.Errorf("source ticket = %v", incident.SourceTicketID)
	}
	if incident.Status != domain.IncidentStatusNew || incident.Severity != domain.SeverityHigh {
		t.Errorf("status=%s severity=%s", incident.Status, incident.Severity)
	}
	if incident.AssigneeID == nil || *incident.AssigneeID != f.officer.ID {
		t.Errorf("assignee = %v, want longest-tenured officer", incident.AssigneeID)
	}
	if incident.Description != ticket.Description {
		t.Errorf("description not carried over")
	}

	frozen, err := f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if frozen.Status != domain.TicketStatusConvertedToIncident {
		t.Fatalf("ticket status = %s", frozen.Status)
	}

	staffView, err := f.incidents.GetIncident(f.ctx, f.officer, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident officer: %v", err)
	}
	got := countActions(staffView.Timeline)
	want := map[domain.TimelineAction]int{
		domain.TimelineUserComment:  1,
		domain.TimelineStaffComment: 2,
		domain.TimelineConverted:    1,
		domain.TimelineAssigned:     1,
	}
	for action, n := range want {
		if got[action] != n {
			t.Errorf("timeline %s = %d, want %d", action, got[action], n)
		}
	}
	copied := map[string]bool{}
	for _, e := range staffView.Timeline {
		if e.Action == domain.TimelineUserComment || e.Action == domain.TimelineStaffComment {
			copied[e.Description] = e.Internal
		}
	}
	visibility := []struct {
		body     string
		internal bool
	}{
		{"It started after the password change.", false},
		{"Token prompts look like a phishing proxy.", false},
		{"Escalating, source IP is on a blocklist.", true},
	}
	for _, v := range visibility {
		internal, ok := copied[v.body]
		if !ok {
			t.Errorf("comment %q not copied", v.body)
			continue
		}
		if internal != v.internal {
			t.Errorf("comment %q internal = %v, want %v", v.body, internal, v.internal)
		}
	}

	userView, err := f.incidents.GetIncident(f.ctx, f.user, incident.ID)
	if err != nil {
		t.Fatalf("affected user cannot read incident: %v", err)
	}
	if len(userView.Timeline) != 4 {
		t.Fatalf("affected user sees %d entries, want 4", len(userView.Timeline))
	}
	for _, e := range userView.Timeline {
		if e.Internal || e.Description == "Escalating, source IP is on a blocklist." {
			t.Fatalf("internal entry leaked: %+v", e)
		}
	}

	if !hasNotification(f.inbox(f.officer), domain.NotifyIncidentAssigned, incident.ID) {
		t.Errorf("officer assignment notification does not reference the incident")
	}
	for _, n := range f.inbox(f.officer) {
		if n.Type == domain.NotifyIncidentAssigned && n.ResourceType != domain.ResourceIncident {
			t.Errorf("assignment notification resource type = %s", n.ResourceType)
		}
	}
	if !hasNotification(f.inbox(f.user), domain.NotifyTicketConverted, ticket.ID) {
		t.Errorf("creator not notified of conversion")
	}
	var conversions int
	for _, e := range f.auditFor(ticket.ID) {
		if e.Action == domain.AuditTicketConverted {
			conversions++
		}
	}
	if conversions != 1 {
		t.Fatalf("TICKET_CONVERTED entries = %d", conversions)
	}

	_, err = f.tickets.UpdateTicket(f.ctx, f.admin, ticket.ID, TicketUpdateInput{Title: ptr("x")})
	assertCode(t, err, apperrors.CodeImmutable)
}

func TestConvertTwiceReportsExistingIncident(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)

	first, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	if err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	_, err = f.conversions.Convert(f.ctx, f.officer, ticket.ID, ConvertInput{})
	domainErr := assertCode(t, err, apperrors.CodeConflict)
	if domainErr.Details["reason"] != "already_converted" {
		t.Errorf("reason = %v", domainErr.Details["reason"])
	}
	if domainErr.Details["incident_id"] != first.ID || domainErr.Details["incident_number"] != first.Number {
		t.Errorf("conflict details = %v, want incident %s/%s", domainErr.Details, first.ID, first.Number)
	}

	all, err := f.store.Incidents.List(f.ctx, repository.IncidentFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("incidents = %d, want 1", len(all))
	}
}

func TestConvertRejections(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)

	_, err := f.conversions.Convert(f.ctx, f.user, ticket.ID, ConvertInput{})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.conversions.Convert(f.ctx, f.agent2, ticket.ID, ConvertInput{})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.conversions.Convert(f.ctx, f.agent, "missing", ConvertInput{})
	assertCode(t, err, apperrors.CodeNotFound)
	_, err = f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{Severity: "apocalyptic"})
	assertCode(t, err, apperrors.CodeValidation)
	_, err = f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{AssigneeID: f.agent2.ID})
	assertCode(t, err, apperrors.CodeValidation)

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		if _, err := f.tickets.UpdateTicket(f.ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(status)}); err != nil {
			t.Fatalf("move to %s: %v", status, err)
		}
	}
	_, err = f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	assertCode(t, err, apperrors.CodeImmutable)
}

func TestConvertResolvedTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)
	if _, err := f.tickets.UpdateTicket(f.ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.conversions.Convert(f.ctx, f.officer, ticket.ID, ConvertInput{}); err != nil {
		t.Fatalf("Convert resolved ticket: %v", err)
	}
}

func TestConvertWithoutOfficerLeavesIncidentUnassigned(t *testing.T) {
	f := newFixture(t)
	for _, officer := range []*domain.Actor{f.officer, f.officer2} {
		officer.Status = domain.ActorStatusInactive
		if err := f.store.Actors.Update(f.ctx, officer); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
	}
	ticket := f.createTicket(f.user)

	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if incident.AssigneeID != nil {
		t.Fatalf("assignee = %s, want none", *incident.AssigneeID)
	}
	view, err := f.incidents.GetIncident(f.ctx, f.admin, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if got := countActions(view.Timeline); got[domain.TimelineAssigned] != 0 || got[domain.TimelineConverted] != 1 {
		t.Fatalf("timeline = %v", got)
	}
}

func TestConvertExplicitAssignee(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)
	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{AssigneeID: f.officer2.ID})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if incident.AssigneeID == nil || *incident.AssigneeID != f.officer2.ID {
		t.Fatalf("assignee = %v", incident.AssigneeID)
	}
}

func TestConvertRetriesOnceOnNumberCollision(t *testing.T) {
	f := newFixture(t)
	squatter := &domain.Incident{
		Number:    "INC-HQ-2026-000001",
		Branch:    "HQ",
		Title:     "imported",
		Status:    domain.IncidentStatusNew,
		Severity:  domain.SeverityLow,
		CreatedAt: epoch,
	}
	if err := f.store.Incidents.Create(f.ctx, squatter); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	ticket := f.createTicket(f.user)

	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if incident.Number != "INC-HQ-2026-000002" {
		t.Fatalf("number = %s, want the next candidate", incident.Number)
	}
}

func TestPartialConversionIsReportedAndReconciled(t *testing.T) {
	var flaky *flakyTickets
	f := newFixture(t, func(s *repository.Store) {
		flaky = &flakyTickets{TicketRepository: s.Tickets}
		s.Tickets = flaky
	})
	ticket := f.createTicket(f.user)
	seedThread(t, f, ticket)

	flaky.failures = 1
	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	domainErr := assertCode(t, err, apperrors.CodeConversionIncomplete)
	if incident == nil {
		t.Fatalf("partial conversion must still return the persisted incident")
	}
	if domainErr.Details["needs_reconciliation"] != true {
		t.Errorf("details = %v", domainErr.Details)
	}
	if domainErr.Details["failed_step"] != domain.StepFreezeTicket {
		t.Errorf("failed_step = %v", domainErr.Details["failed_step"])
	}

	current, _ := f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if current.Status == domain.TicketStatusConvertedToIncident {
		t.Fatalf("ticket frozen despite failure")
	}
	pending, err := f.conversions.ListReconciliations(f.ctx, f.admin, true, 10)
	if err != nil {
		t.Fatalf("ListReconciliations: %v", err)
	}
	if len(pending) != 1 || pending[0].IncidentID != incident.ID {
		t.Fatalf("pending = %+v", pending)
	}
	_, err = f.conversions.ListReconciliations(f.ctx, f.agent, true, 10)
	assertCode(t, err, apperrors.CodeForbidden)

	var flagged bool
	for _, e := range f.auditFor(ticket.ID) {
		if e.Action == domain.AuditTicketConverted && e.Details["needs_reconciliation"] == true {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("conversion audit entry does not carry the reconciliation marker")
	}

	_, err = f.conversions.Convert(f.ctx, f.officer, ticket.ID, ConvertInput{})
	assertCode(t, err, apperrors.CodeConflict)

	resolved, err := f.conversions.Reconcile(f.ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved = %d", resolved)
	}
	current, _ = f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if current.Status != domain.TicketStatusConvertedToIncident {
		t.Fatalf("ticket status after reconcile = %s", current.Status)
	}

	view, err := f.incidents.GetIncident(f.ctx, f.admin, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	got := countActions(view.Timeline)
	if got[domain.TimelineUserComment] != 1 || got[domain.TimelineStaffComment] != 2 ||
		got[domain.TimelineConverted] != 1 || got[domain.TimelineAssigned] != 1 {
		t.Fatalf("timeline after reconcile = %v", got)
	}

	again, err := f.conversions.Reconcile(f.ctx)
	if err != nil || again != 0 {
		t.Fatalf("second Reconcile = %d, %v", again, err)
	}
	var reconciled int
	for _, e := range f.auditFor(ticket.ID) {
		if e.Action == domain.AuditConversionReconciled {
			reconciled++
		}
	}
	if reconciled != 1 {
		t.Fatalf("CONVERSION_RECONCILED entries = %d", reconciled)
	}
}

func TestReconcileAbandonsConversionOfClosedTicket(t *testing.T) {
	var flaky *flakyTickets
	f := newFixture(t, func(s *repository.Store) {
		flaky = &flakyTickets{TicketRepository: s.Tickets}
		s.Tickets = flaky
	})
	ticket := f.createTicket(f.user)

	flaky.failures = 1
	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	assertCode(t, err, apperrors.CodeConversionIncomplete)

	if _, err := f.tickets.UpdateTicket(f.ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusClosed)}); err != nil {
		t.Fatalf("close ticket: %v", err)
	}

	for i := 0; i < 2; i++ {
		resolved, err := f.conversions.Reconcile(f.ctx)
		if err != nil || resolved != 0 {
			t.Fatalf("Reconcile #%d = %d, %v", i+1, resolved, err)
		}
	}

	pending, err := f.conversions.ListReconciliations(f.ctx, f.admin, true, 10)
	if err != nil {
		t.Fatalf("ListReconciliations: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("marker still pending: %+v", pending)
	}
	all, _ := f.conversions.ListReconciliations(f.ctx, f.admin, false, 10)
	if len(all) != 1 || !all[0].Abandoned || all[0].ResolvedAt == nil {
		t.Fatalf("markers = %+v", all)
	}
	if all[0].Error == "" {
		t.Errorf("abandoned marker carries no reason")
	}

	current, _ := f.store.Tickets.GetByID(f.ctx, ticket.ID)
	if current.Status != domain.TicketStatusClosed {
		t.Fatalf("ticket status = %s, want closed", current.Status)
	}
	var abandoned int
	for _, e := range f.auditFor(incident.ID) {
		if e.Action == domain.AuditConversionAbandoned {
			abandoned++
		}
	}
	if abandoned != 1 {
		t.Fatalf("CONVERSION_ABANDONED entries = %d", abandoned)
	}
}
