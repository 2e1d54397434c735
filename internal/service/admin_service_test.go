package service

import (
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestSLARuleAdministration(t *testing.T) {
	f := newFixture(t)

	rules, err := f.slaRules.ListRules(f.ctx, f.user)
	if err != nil {
		t.Fatalf("ListRules as end user: %v", err)
	}
	if len(rules) != 4 {
		t.Fatalf("rules = %d", len(rules))
	}

	_, err = f.slaRules.CreateRule(f.ctx, f.admin, SLARuleInput{Priority: domain.TicketPriorityHigh, ResponseMinutes: 30, ResolutionHours: 6})
	assertCode(t, err, apperrors.CodeConflict)

	cases := []struct {
		name  string
		actor *domain.Actor
		input SLARuleInput
		code  string
	}{
		{"officer", f.officer, SLARuleInput{Priority: domain.TicketPriorityLow, ResponseMinutes: 1, ResolutionHours: 1}, apperrors.CodeForbidden},
		{"bad priority", f.admin, SLARuleInput{Priority: "asap", ResponseMinutes: 1, ResolutionHours: 1}, apperrors.CodeValidation},
		{"zero response", f.admin, SLARuleInput{Priority: domain.TicketPriorityLow, ResolutionHours: 1}, apperrors.CodeValidation},
		{"negative resolution", f.admin, SLARuleInput{Priority: domain.TicketPriorityLow, ResponseMinutes: 5, ResolutionHours: -2}, apperrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.slaRules.CreateRule(f.ctx, tc.actor, tc.input)
			assertCode(t, err, tc.code)
		})
	}

	var high domain.SLARule
	for _, r := range rules {
		if r.Priority == domain.TicketPriorityHigh {
			high = r
		}
	}
	if _, err := f.slaRules.UpdateRule(f.ctx, f.admin, high.ID, SLARuleUpdateInput{Active: ptr(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	replacement, err := f.slaRules.CreateRule(f.ctx, f.admin, SLARuleInput{Priority: domain.TicketPriorityHigh, ResponseMinutes: 30, ResolutionHours: 6})
	if err != nil {
		t.Fatalf("create replacement: %v", err)
	}
	_, err = f.slaRules.UpdateRule(f.ctx, f.admin, high.ID, SLARuleUpdateInput{Active: ptr(true)})
	assertCode(t, err, apperrors.CodeConflict)

	ticket := f.createTicket(f.user, func(in *TicketCreateInput) { in.Priority = domain.TicketPriorityHigh })
	if ticket.SLADueAt == nil || !ticket.SLADueAt.Equal(epoch.Add(6*60*60*1e9)) {
		t.Fatalf("due = %v, want six hours from creation", ticket.SLADueAt)
	}

	if err := f.slaRules.DeleteRule(f.ctx, f.admin, replacement.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	assertCode(t, f.slaRules.DeleteRule(f.ctx, f.admin, replacement.ID), apperrors.CodeNotFound)
	untracked := f.createTicket(f.user, func(in *TicketCreateInput) { in.Priority = domain.TicketPriorityHigh })
	if untracked.SLADueAt != nil {
		t.Fatalf("ticket without an active rule got due date %v", untracked.SLADueAt)
	}
	if got := len(f.auditFor(replacement.ID)); got != 2 {
		t.Fatalf("audit entries for rule = %d, want create and delete", got)
	}
}

func TestSingleAdministrator(t *testing.T) {
	f := newFixture(t)

	_, err := f.actors.CreateActor(f.ctx, f.admin, ActorCreateInput{Name: "Second", Email: "second@example.com", Role: domain.RoleAdministrator})
	assertCode(t, err, apperrors.CodeConflict)

	_, err = f.actors.UpdateActor(f.ctx, f.admin, f.officer.ID, ActorUpdateInput{Role: ptr(domain.RoleAdministrator)})
	assertCode(t, err, apperrors.CodeConflict)

	_, err = f.actors.UpdateActor(f.ctx, f.admin, f.admin.ID, ActorUpdateInput{Role: ptr(domain.RoleSecurityOfficer)})
	assertCode(t, err, apperrors.CodeConflict)

	_, err = f.actors.UpdateActor(f.ctx, f.admin, f.admin.ID, ActorUpdateInput{Status: ptr(domain.ActorStatusInactive)})
	assertCode(t, err, apperrors.CodeConflict)

	existing, created, err := f.actors.BootstrapAdmin(f.ctx, "Root", "root@example.com")
	if err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	if created || existing.ID != f.admin.ID {
		t.Fatalf("bootstrap created=%v id=%s, want existing admin", created, existing.ID)
	}
}

func TestBootstrapAdminOnEmptyStore(t *testing.T) {
	f := newFixture(t)
	f.admin.Role = domain.RoleSecurityOfficer
	if err := f.store.Actors.Update(f.ctx, f.admin); err != nil {
		t.Fatalf("demote seed admin: %v", err)
	}
	admin, created, err := f.actors.BootstrapAdmin(f.ctx, "Root", "Root@Example.com")
	if err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	if !created || admin.Role != domain.RoleAdministrator || admin.Email != "root@example.com" {
		t.Fatalf("bootstrap = %+v created=%v", admin, created)
	}
}

func TestActorAdministration(t *testing.T) {
	f := newFixture(t)

	_, err := f.actors.CreateActor(f.ctx, f.officer, ActorCreateInput{Name: "x", Email: "x@example.com", Role: domain.RoleEndUser})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.actors.CreateActor(f.ctx, f.admin, ActorCreateInput{Name: "x", Email: "x@example.com", Role: domain.RoleSupportAgent, Branches: []string{"MARS"}})
	assertCode(t, err, apperrors.CodeValidation)
	_, err = f.actors.CreateActor(f.ctx, f.admin, ActorCreateInput{Name: "x", Email: "x@example.com", Role: "root"})
	assertCode(t, err, apperrors.CodeValidation)

	agent, err := f.actors.CreateActor(f.ctx, f.admin, ActorCreateInput{
		Name:     "Jaya",
		Email:    "jaya@example.com",
		Role:     domain.RoleSupportAgent,
		Branches: []string{"jkt", "JKT", " hq "},
	})
	if err != nil {
		t.Fatalf("CreateActor: %v", err)
	}
	if len(agent.Branches) != 2 || agent.Branches[0] != "JKT" || agent.Branches[1] != "HQ" {
		t.Fatalf("branches = %v", agent.Branches)
	}

	ticket := f.createTicket(f.user, func(in *TicketCreateInput) { in.Branch = "JKT" })
	if ticket.AssigneeID == nil || *ticket.AssigneeID != agent.ID {
		t.Fatalf("new JKT agent not auto-assigned: %v", ticket.AssigneeID)
	}

	updated, err := f.actors.UpdateActor(f.ctx, f.admin, agent.ID, ActorUpdateInput{Status: ptr(domain.ActorStatusInactive)})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if updated.Active() {
		t.Fatalf("actor still active")
	}
	_, err = f.tickets.GetTicket(f.ctx, updated, ticket.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	inactive := domain.ActorStatusInactive
	list, err := f.actors.ListActors(f.ctx, f.admin, ActorListFilter{Status: &inactive})
	if err != nil || len(list) != 1 || list[0].ID != agent.ID {
		t.Fatalf("inactive list = %+v, %v", list, err)
	}
	_, err = f.actors.GetActor(f.ctx, f.admin, "nobody")
	assertCode(t, err, apperrors.CodeNotFound)
	_, err = f.actors.ListActors(f.ctx, f.agent, ActorListFilter{})
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestNotificationInbox(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)
	if _, err := f.tickets.AddComment(f.ctx, f.agent, ticket.ID, "on it", false); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := f.tickets.UpdateTicket(f.ctx, f.agent, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)}); err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}

	items, err := f.notifications.List(f.ctx, f.user, true, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("unread = %d, want 2", len(items))
	}

	_, err = f.notifications.MarkRead(f.ctx, f.agent, items[0].ID)
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = f.notifications.MarkRead(f.ctx, f.user, "missing")
	assertCode(t, err, apperrors.CodeNotFound)

	read, err := f.notifications.MarkRead(f.ctx, f.user, items[0].ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !read.Read || read.ReadAt == nil {
		t.Fatalf("notification not read: %+v", read)
	}
	firstReadAt := *read.ReadAt
	f.clock.Advance(60 * 1e9)
	again, err := f.notifications.MarkRead(f.ctx, f.user, items[0].ID)
	if err != nil {
		t.Fatalf("MarkRead again: %v", err)
	}
	if !again.ReadAt.Equal(firstReadAt) {
		t.Fatalf("re-read moved read_at to %v", again.ReadAt)
	}

	count, err := f.notifications.MarkAllRead(f.ctx, f.user)
	if err != nil || count != 1 {
		t.Fatalf("MarkAllRead = %d, %v", count, err)
	}
	unread, err := f.notifications.List(f.ctx, f.user, true, 0, 0)
	if err != nil || len(unread) != 0 {
		t.Fatalf("unread after mark-all = %d, %v", len(unread), err)
	}
}

func TestAuditQueryIsAdministratorOnly(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(f.user)

	_, err := f.audit.List(f.ctx, f.officer, AuditFilter{})
	assertCode(t, err, apperrors.CodeForbidden)

	resourceType := domain.ResourceTicket
	entries, err := f.audit.List(f.ctx, f.admin, AuditFilter{ResourceType: &resourceType, ResourceID: &ticket.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.AuditTicketCreated || entries[0].ActorID != f.user.ID {
		t.Fatalf("entries = %+v", entries)
	}
}
