package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func (f *fixture) createIncident(actor *domain.Actor, mutate ...func(*IncidentCreateInput)) *domain.Incident {
	f.t.Helper()
	input := IncidentCreateInput{
		Category:    "malware",
		Title:       "Beaconing from build host",
		Description: "EDR flagged periodic outbound traffic.",
	}
	for _, m := range mutate {
		m(&input)
	}
	incident, err := f.incidents.CreateIncident(f.ctx, actor, input)
	if err != nil {
		f.t.Fatalf("CreateIncident: %v", err)
	}
	return incident
}

func TestCreateIncidentAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	incident := f.createIncident(f.officer)

	if incident.Number != "INC-2026-000001" {
		t.Errorf("number = %s", incident.Number)
	}
	if incident.Severity != domain.SeverityMedium {
		t.Errorf("severity = %s", incident.Severity)
	}
	if incident.DetectionMethod != domain.DetectionUserReported {
		t.Errorf("detection = %s", incident.DetectionMethod)
	}
	if incident.ConfidentialityImpact != domain.ImpactNone || incident.AvailabilityImpact != domain.ImpactNone {
		t.Errorf("impacts not defaulted: %+v", incident)
	}
	if incident.AffectedAsset != "" || incident.AffectedUserID != nil {
		t.Errorf("affected fields must only come from conversion")
	}

	view, err := f.incidents.GetIncident(f.ctx, f.officer, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if len(view.Timeline) != 1 || view.Timeline[0].Action != domain.TimelineCreated {
		t.Fatalf("timeline = %+v", view.Timeline)
	}

	if !hasNotification(f.inbox(f.officer2), domain.NotifyIncidentCreated, incident.ID) {
		t.Errorf("other officer not notified")
	}
	if !hasNotification(f.inbox(f.admin), domain.NotifyIncidentCreated, incident.ID) {
		t.Errorf("administrator not notified")
	}
	if len(f.inbox(f.officer)) != 0 {
		t.Errorf("creating officer notified about their own incident")
	}
	if len(f.inbox(f.agent)) != 0 {
		t.Errorf("support agent notified about an incident")
	}

	branched := f.createIncident(f.admin, func(in *IncidentCreateInput) {
		in.Branch = "hq"
		in.AssigneeID = f.officer2.ID
	})
	if branched.Number != "INC-HQ-2026-000001" {
		t.Errorf("branch number = %s", branched.Number)
	}
	if !hasNotification(f.inbox(f.officer2), domain.NotifyIncidentAssigned, branched.ID) {
		t.Errorf("assignee not notified")
	}
}

func TestCreateIncidentRejections(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		actor  *domain.Actor
		mutate func(*IncidentCreateInput)
		code   string
	}{
		{"end user", f.user, func(*IncidentCreateInput) {}, apperrors.CodeForbidden},
		{"support agent", f.agent, func(*IncidentCreateInput) {}, apperrors.CodeForbidden},
		{"missing category", f.officer, func(in *IncidentCreateInput) { in.Category = "" }, apperrors.CodeValidation},
		{"bad severity", f.officer, func(in *IncidentCreateInput) { in.Severity = "meh" }, apperrors.CodeValidation},
		{"bad impact", f.officer, func(in *IncidentCreateInput) { in.IntegrityImpact = "total" }, apperrors.CodeValidation},
		{"unknown branch", f.officer, func(in *IncidentCreateInput) { in.Branch = "ZZZ" }, apperrors.CodeValidation},
		{"agent assignee", f.officer, func(in *IncidentCreateInput) { in.AssigneeID = f.agent.ID }, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := IncidentCreateInput{Category: "malware", Title: "t", Description: "d"}
			tc.mutate(&input)
			_, err := f.incidents.CreateIncident(f.ctx, tc.actor, input)
			assertCode(t, err, tc.code)
		})
	}
}

func TestIncidentStatusIsMonotonicAndStampedOnce(t *testing.T) {
	f := newFixture(t)
	incident := f.createIncident(f.officer)

	f.clock.Advance(time.Hour)
	triagedAt := f.clock.Now()
	updated, err := f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{Status: ptr(domain.IncidentStatusTriaged)})
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if updated.TriagedAt == nil || !updated.TriagedAt.Equal(triagedAt) {
		t.Fatalf("triaged_at = %v", updated.TriagedAt)
	}

	_, err = f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{Status: ptr(domain.IncidentStatusNew)})
	assertCode(t, err, apperrors.CodeValidation)

	f.clock.Advance(time.Hour)
	updated, err = f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{Status: ptr(domain.IncidentStatusContained)})
	if err != nil {
		t.Fatalf("contain: %v", err)
	}
	if !updated.TriagedAt.Equal(triagedAt) {
		t.Fatalf("triaged_at re-stamped to %v", updated.TriagedAt)
	}
	if updated.ContainedAt == nil || !updated.ContainedAt.Equal(f.clock.Now()) {
		t.Fatalf("contained_at = %v", updated.ContainedAt)
	}

	view, err := f.incidents.GetIncident(f.ctx, f.officer, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	var statusEntries int
	for _, e := range view.Timeline {
		if e.Action == domain.TimelineStatusChanged {
			statusEntries++
			if e.Internal {
				t.Errorf("progress entry marked internal: %+v", e)
			}
		}
	}
	if statusEntries != 2 {
		t.Fatalf("status entries = %d", statusEntries)
	}
}

func TestClosedIncidentIsImmutable(t *testing.T) {
	f := newFixture(t)
	incident := f.createIncident(f.officer)
	closed, err := f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{
		Status:            ptr(domain.IncidentStatusClosed),
		ResolutionSummary: ptr("Host reimaged."),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("closed_at not stamped")
	}

	cases := []struct {
		name  string
		input IncidentUpdateInput
	}{
		{"title", IncidentUpdateInput{Title: ptr("renamed")}},
		{"assignee", IncidentUpdateInput{AssigneeID: ptr(f.officer2.ID)}},
		{"root cause", IncidentUpdateInput{RootCause: ptr("supply chain")}},
		{"same status", IncidentUpdateInput{Status: ptr(domain.IncidentStatusClosed)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.incidents.UpdateIncident(f.ctx, f.admin, incident.ID, tc.input)
			assertCode(t, err, apperrors.CodeImmutable)
		})
	}
	_, err = f.incidents.AddTimelineEntry(f.ctx, f.officer, incident.ID, domain.TimelineNote, "late note", true)
	assertCode(t, err, apperrors.CodeImmutable)
}

func TestIncidentUpdatesReachTicketCreator(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)
	incident, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if _, err := f.incidents.UpdateIncident(f.ctx, f.officer, incident.ID, IncidentUpdateInput{
		Status:     ptr(domain.IncidentStatusInvestigating),
		AssigneeID: ptr(f.officer2.ID),
		Severity:   ptr(domain.SeverityCritical),
	}); err != nil {
		t.Fatalf("UpdateIncident: %v", err)
	}
	if !hasNotification(f.inbox(f.user), domain.NotifyIncidentUpdated, incident.ID) {
		t.Errorf("ticket creator not notified of incident update")
	}
	if !hasNotification(f.inbox(f.officer2), domain.NotifyIncidentAssigned, incident.ID) {
		t.Errorf("new assignee not notified")
	}

	if _, err := f.incidents.AddTimelineEntry(f.ctx, f.officer2, incident.ID, "", "Credential reset forced.", false); err != nil {
		t.Fatalf("public note: %v", err)
	}
	if _, err := f.incidents.AddTimelineEntry(f.ctx, f.officer2, incident.ID, "", "Attacker ASN noted.", true); err != nil {
		t.Fatalf("internal note: %v", err)
	}
	var timelineNotes int
	for _, n := range f.inbox(f.user) {
		if n.Type == domain.NotifyIncidentTimeline {
			timelineNotes++
		}
	}
	if timelineNotes != 1 {
		t.Fatalf("creator got %d timeline notifications, want 1", timelineNotes)
	}

	view, err := f.incidents.GetIncident(f.ctx, f.user, incident.ID)
	if err != nil {
		t.Fatalf("GetIncident user: %v", err)
	}
	got := countActions(view.Timeline)
	if got[domain.TimelineUpdated] != 0 {
		t.Errorf("internal field-change entry visible to end user")
	}
	if got[domain.TimelineStatusChanged] != 1 || got[domain.TimelineAssigned] != 2 || got[domain.TimelineNote] != 1 {
		t.Errorf("end user timeline = %v", got)
	}

	_, err = f.incidents.UpdateIncident(f.ctx, f.user, incident.ID, IncidentUpdateInput{Title: ptr("x")})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.incidents.AddTimelineEntry(f.ctx, f.user, incident.ID, "", "hello", false)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestListIncidentsIsScopedByRole(t *testing.T) {
	f := newFixture(t)
	direct := f.createIncident(f.officer)
	ticket := f.createTicket(f.user)
	converted, err := f.conversions.Convert(f.ctx, f.agent, ticket.ID, ConvertInput{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	all, err := f.incidents.ListIncidents(f.ctx, f.officer, IncidentListFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("officer list = %d, %v", len(all), err)
	}
	own, err := f.incidents.ListIncidents(f.ctx, f.user, IncidentListFilter{})
	if err != nil {
		t.Fatalf("user list: %v", err)
	}
	if len(own) != 1 || own[0].ID != converted.ID {
		t.Fatalf("user sees %+v", own)
	}
	none, err := f.incidents.ListIncidents(f.ctx, f.user2, IncidentListFilter{})
	if err != nil || len(none) != 0 {
		t.Fatalf("unrelated user sees %d, %v", len(none), err)
	}
	_, err = f.incidents.ListIncidents(f.ctx, f.agent, IncidentListFilter{})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.incidents.GetIncident(f.ctx, f.user2, direct.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	hq, err := f.incidents.ListIncidents(f.ctx, f.admin, IncidentListFilter{Branch: "hq"})
	if err != nil || len(hq) != 1 || hq[0].ID != converted.ID {
		t.Fatalf("branch filter = %+v, %v", hq, err)
	}
}

func TestTimelineEntryPublishesEvent(t *testing.T) {
	f := newFixture(t)
	incident := f.createIncident(f.officer)

	var published []events.Event
	f.bus.Subscribe(events.EventIncidentTimelineAdded, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})
	entry, err := f.incidents.AddTimelineEntry(f.ctx, f.officer, incident.ID, domain.TimelineNote, "Isolated the host.", true)
	if err != nil {
		t.Fatalf("AddTimelineEntry: %v", err)
	}
	if len(published) != 1 || published[0].ResourceID != incident.ID {
		t.Fatalf("published = %+v", published)
	}
	if entry.ID == "" {
		t.Fatalf("entry id not assigned")
	}
}
