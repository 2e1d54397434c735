package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/branch"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/numbering"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/sla"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAttachments struct {
	deleted []string
	err     error
}

func (f *fakeAttachments) ListAttachments(context.Context, domain.ResourceType, string) ([]domain.Attachment, error) {
	return nil, nil
}

func (f *fakeAttachments) DeleteAttachments(_ context.Context, _ domain.ResourceType, recordID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, recordID)
	return nil
}

type fixture struct {
	t           *testing.T
	ctx         context.Context
	store       *repository.Store
	clock       *fakeClock
	metrics     *observability.Metrics
	bus         events.Dispatcher
	attachments *fakeAttachments

	tickets       *TicketService
	incidents     *IncidentService
	conversions   *ConversionService
	slaRules      *SLAService
	actors        *ActorService
	notifications *NotificationService
	audit         *AuditService

	admin    *domain.Actor
	agent    *domain.Actor
	agent2   *domain.Actor
	officer  *domain.Actor
	officer2 *domain.Actor
	user     *domain.Actor
	user2    *domain.Actor
}

// newFixture wires every service over the in-memory store. wrap may replace repositories before wiring.
func newFixture(t *testing.T, wrap ...func(*repository.Store)) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: epoch}

	for _, acronym := range []string{"HQ", "JKT"} {
		if err := store.Branches.Upsert(ctx, repository.Branch{Acronym: acronym, Name: acronym, Active: true}); err != nil {
			t.Fatalf("seed branch: %v", err)
		}
	}
	for _, rule := range []domain.SLARule{
		{Priority: domain.TicketPriorityUrgent, ResponseMinutes: 15, ResolutionHours: 4, Active: true},
		{Priority: domain.TicketPriorityHigh, ResponseMinutes: 60, ResolutionHours: 8, Active: true},
		{Priority: domain.TicketPriorityMedium, ResponseMinutes: 240, ResolutionHours: 24, Active: true},
		{Priority: domain.TicketPriorityLow, ResponseMinutes: 480, ResolutionHours: 72, Active: true},
	} {
		rule := rule
		rule.CreatedAt = epoch
		if err := store.SLARules.Create(ctx, &rule); err != nil {
			t.Fatalf("seed sla rule: %v", err)
		}
	}

	f := &fixture{t: t, ctx: ctx, store: store, clock: clock, metrics: observability.NewMetrics(), attachments: &fakeAttachments{}}
	f.admin = f.seedActor("Ada Admin", domain.RoleAdministrator, 10)
	f.agent = f.seedActor("Aldo Agent", domain.RoleSupportAgent, 9, "HQ")
	f.agent2 = f.seedActor("Bea Agent", domain.RoleSupportAgent, 8, "HQ")
	f.officer = f.seedActor("Omar Officer", domain.RoleSecurityOfficer, 7)
	f.officer2 = f.seedActor("Olga Officer", domain.RoleSecurityOfficer, 6)
	f.user = f.seedActor("Uma User", domain.RoleEndUser, 5)
	f.user2 = f.seedActor("Umar User", domain.RoleEndUser, 4)

	for _, w := range wrap {
		w(store)
	}
	f.wire()
	return f
}

func (f *fixture) wire() {
	f.t.Helper()
	guard, err := rbac.NewGuard()
	if err != nil {
		f.t.Fatalf("guard: %v", err)
	}
	store := f.store
	directory := branch.NewDirectory(store.Branches, time.Minute, f.clock.Now)
	numbers := numbering.NewService(store.Sequences)
	f.bus = events.NewInMemoryDispatcher(nil)
	dispatcher := NewDispatcher(DispatcherDependencies{
		AuditRepo:        store.Audit,
		NotificationRepo: store.Notifications,
		ActorRepo:        store.Actors,
		Events:           f.bus,
		Metrics:          f.metrics,
		Clock:            f.clock.Now,
	})

	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:  store.Tickets,
		CommentRepo: store.Comments,
		ActorRepo:   store.Actors,
		Transactor:  store.Tx,
		Attachments: f.attachments,
		Branches:    directory,
		Guard:       guard,
		SLA:         sla.NewCalculator(store.SLARules),
		Numbers:     numbers,
		Dispatcher:  dispatcher,
		Clock:       f.clock.Now,
	})
	f.incidents = NewIncidentService(IncidentDependencies{
		IncidentRepo: store.Incidents,
		TimelineRepo: store.Timeline,
		ActorRepo:    store.Actors,
		Transactor:   store.Tx,
		Branches:     directory,
		Guard:        guard,
		Numbers:      numbers,
		Dispatcher:   dispatcher,
		Clock:        f.clock.Now,
	})
	f.conversions = NewConversionService(ConversionDependencies{
		TicketRepo:         store.Tickets,
		CommentRepo:        store.Comments,
		IncidentRepo:       store.Incidents,
		TimelineRepo:       store.Timeline,
		ActorRepo:          store.Actors,
		ReconciliationRepo: store.Reconciliations,
		Transactor:         store.Tx,
		Guard:              guard,
		Numbers:            numbers,
		Dispatcher:         dispatcher,
		Metrics:            f.metrics,
		Clock:              f.clock.Now,
	})
	f.slaRules = NewSLAService(SLADependencies{
		RuleRepo:   store.SLARules,
		Guard:      guard,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
	})
	f.actors = NewActorService(ActorDependencies{
		ActorRepo:  store.Actors,
		Branches:   directory,
		Guard:      guard,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
	})
	f.notifications = NewNotificationService(NotificationDependencies{
		NotificationRepo: store.Notifications,
		Guard:            guard,
		Clock:            f.clock.Now,
	})
	f.audit = NewAuditService(store.Audit, guard)
}

// seedActor stores an active actor whose tenure starts daysAgo days before epoch.
func (f *fixture) seedActor(name string, role domain.Role, daysAgo int, branches ...string) *domain.Actor {
	f.t.Helper()
	a := &domain.Actor{
		Name:      name,
		Email:     name + "@example.com",
		Role:      role,
		Status:    domain.ActorStatusActive,
		Branches:  branches,
		CreatedAt: epoch.AddDate(0, 0, -daysAgo),
	}
	if err := f.store.Actors.Create(f.ctx, a); err != nil {
		f.t.Fatalf("seed actor %s: %v", name, err)
	}
	return a
}

func (f *fixture) createTicket(actor *domain.Actor, mutate ...func(*TicketCreateInput)) *domain.Ticket {
	f.t.Helper()
	input := TicketCreateInput{
		Branch:         "HQ",
		Category:       "network",
		Title:          "VPN drops every hour",
		Description:    "The VPN client disconnects and asks for a token.",
		AffectedSystem: "VPN",
	}
	for _, m := range mutate {
		m(&input)
	}
	ticket, err := f.tickets.CreateTicket(f.ctx, actor, input)
	if err != nil {
		f.t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func (f *fixture) auditFor(resourceID string) []domain.AuditLogEntry {
	f.t.Helper()
	entries, err := f.store.Audit.List(f.ctx, repository.AuditFilter{ResourceID: &resourceID, Limit: 200})
	if err != nil {
		f.t.Fatalf("audit list: %v", err)
	}
	return entries
}

func (f *fixture) inbox(actor *domain.Actor) []domain.Notification {
	f.t.Helper()
	items, err := f.store.Notifications.ListByUser(f.ctx, actor.ID, false, 200, 0)
	if err != nil {
		f.t.Fatalf("notifications: %v", err)
	}
	return items
}

func hasNotification(items []domain.Notification, typ domain.NotificationType, resourceID string) bool {
	for _, n := range items {
		if n.Type == typ && n.ResourceID == resourceID {
			return true
		}
	}
	return false
}

func assertCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %T: %v", code, err, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, domainErr.Code, err)
	}
	return domainErr
}

func ptr[T any](v T) *T {
	return &v
}
