package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type brokenAudit struct {
	repository.AuditRepository
}

func (brokenAudit) Append(context.Context, *domain.AuditLogEntry) error {
	return errors.New("disk full")
}

func sideEffectFailures(t *testing.T, m *observability.Metrics, concern string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "helpdesk_side_effect_failures_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "concern" && label.GetValue() == concern {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestDispatcherDedupesAndSkipsActor(t *testing.T) {
	f := newFixture(t)
	bus := events.NewInMemoryDispatcher(nil)
	var delivered []domain.Notification
	bus.Subscribe(events.EventNotificationCreated, func(_ context.Context, e events.Event) error {
		delivered = append(delivered, e.Payload.(events.NotificationCreatedPayload).Notification)
		return nil
	})
	var mutations int
	bus.Subscribe(events.EventTicketUpdated, func(context.Context, events.Event) error {
		mutations++
		return nil
	})
	d := NewDispatcher(DispatcherDependencies{
		AuditRepo:        f.store.Audit,
		NotificationRepo: f.store.Notifications,
		ActorRepo:        f.store.Actors,
		Events:           bus,
		Metrics:          f.metrics,
		Clock:            f.clock.Now,
	})

	d.OnMutation(f.ctx, Mutation{
		ActorID:      f.agent.ID,
		Action:       domain.AuditTicketUpdated,
		ResourceType: domain.ResourceTicket,
		ResourceID:   "ticket-1",
		Event:        events.EventTicketUpdated,
		Notify: []Recipient{
			{UserID: f.user.ID, Type: domain.NotifyTicketUpdated},
			{UserID: f.user.ID, Type: domain.NotifyTicketUpdated},
			{UserID: f.agent.ID, Type: domain.NotifyTicketAssigned},
		},
		Broadcast: &RoleBroadcast{
			Roles:   []domain.Role{domain.RoleSupportAgent, domain.RoleAdministrator},
			Exclude: []string{f.admin.ID},
			Type:    domain.NotifyTicketCreated,
		},
	})

	if got := len(f.auditFor("ticket-1")); got != 1 {
		t.Fatalf("audit entries = %d, want 1", got)
	}
	if len(f.inbox(f.agent)) != 0 {
		t.Errorf("actor notified about their own change")
	}
	if len(f.inbox(f.admin)) != 0 {
		t.Errorf("excluded actor notified")
	}
	if got := len(f.inbox(f.user)); got != 1 {
		t.Errorf("user notifications = %d, want 1", got)
	}
	if !hasNotification(f.inbox(f.agent2), domain.NotifyTicketCreated, "ticket-1") {
		t.Errorf("broadcast did not reach the other agent")
	}
	if len(delivered) != 2 {
		t.Errorf("delivery events = %d, want 2", len(delivered))
	}
	if mutations != 1 {
		t.Errorf("mutation events = %d, want 1", mutations)
	}
}

func TestDispatcherAuditFailureIsCountedNotReturned(t *testing.T) {
	f := newFixture(t, func(s *repository.Store) {
		s.Audit = brokenAudit{s.Audit}
	})
	ticket := f.createTicket(f.user)
	if ticket.Number == "" {
		t.Fatalf("ticket creation should survive an audit failure")
	}
	if got := sideEffectFailures(t, f.metrics, "audit"); got != 1 {
		t.Fatalf("audit failures = %v, want 1", got)
	}
	if !hasNotification(f.inbox(f.agent), domain.NotifyTicketAssigned, ticket.ID) {
		t.Fatalf("notifications must still be written after an audit failure")
	}
}

func TestDispatcherRecipientResourceOverride(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(DispatcherDependencies{
		AuditRepo:        f.store.Audit,
		NotificationRepo: f.store.Notifications,
		ActorRepo:        f.store.Actors,
		Metrics:          f.metrics,
		Clock:            f.clock.Now,
	})
	cases := []struct {
		name         string
		actor        *domain.Actor
		recipient    Recipient
		wantType     domain.ResourceType
		wantResource string
	}{
		{
			name:         "inherits mutation resource",
			actor:        f.user,
			recipient:    Recipient{UserID: f.user.ID, Type: domain.NotifyTicketConverted},
			wantType:     domain.ResourceTicket,
			wantResource: "ticket-9",
		},
		{
			name:  "points at its own resource",
			actor: f.officer,
			recipient: Recipient{
				UserID:       f.officer.ID,
				Type:         domain.NotifyIncidentAssigned,
				ResourceType: domain.ResourceIncident,
				ResourceID:   "incident-3",
			},
			wantType:     domain.ResourceIncident,
			wantResource: "incident-3",
		},
	}

	d.OnMutation(f.ctx, Mutation{
		ActorID:      f.agent.ID,
		Action:       domain.AuditTicketConverted,
		ResourceType: domain.ResourceTicket,
		ResourceID:   "ticket-9",
		Notify:       []Recipient{cases[0].recipient, cases[1].recipient},
	})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inbox := f.inbox(tc.actor)
			if len(inbox) != 1 {
				t.Fatalf("notifications = %d, want 1", len(inbox))
			}
			n := inbox[0]
			if n.Type != tc.recipient.Type || n.ResourceType != tc.wantType || n.ResourceID != tc.wantResource {
				t.Fatalf("got %s on %s/%s, want %s/%s", n.Type, n.ResourceType, n.ResourceID, tc.wantType, tc.wantResource)
			}
		})
	}
	if got := len(f.auditFor("ticket-9")); got != 1 {
		t.Fatalf("audit entries = %d, want 1", got)
	}
}
