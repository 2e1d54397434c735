// Package memory provides process-local implementations of the repository interfaces. It backs the
// service when no database is configured and serves as the fake store in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// DB holds every table behind a single lock.
type DB struct {
	mu              sync.Mutex
	actors          map[string]*domain.Actor
	branches        map[string]repository.Branch
	tickets         map[string]*domain.Ticket
	comments        []*domain.Comment
	incidents       map[string]*domain.Incident
	timeline        []*domain.TimelineEntry
	slaRules        map[string]*domain.SLARule
	audit           []*domain.AuditLogEntry
	notifications   []*domain.Notification
	counters        map[string]int64
	attachments     []*domain.Attachment
	reconciliations []*domain.Reconciliation
}

// New returns an empty database.
func New() *DB {
	return &DB{
		actors:    map[string]*domain.Actor{},
		branches:  map[string]repository.Branch{},
		tickets:   map[string]*domain.Ticket{},
		incidents: map[string]*domain.Incident{},
		slaRules:  map[string]*domain.SLARule{},
		counters:  map[string]int64{},
	}
}

// NewStore wires every repository over a fresh database. The returned store has no transactor.
func NewStore() *repository.Store {
	return New().Store()
}

// Store exposes db through the repository interfaces.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Actors:          &actorRepo{db},
		Branches:        &branchRepo{db},
		Tickets:         &ticketRepo{db},
		Comments:        &commentRepo{db},
		Incidents:       &incidentRepo{db},
		Timeline:        &timelineRepo{db},
		SLARules:        &slaRuleRepo{db},
		Audit:           &auditRepo{db},
		Notifications:   &notificationRepo{db},
		Sequences:       &sequenceRepo{db},
		Attachments:     &attachmentRepo{db},
		Reconciliations: &reconciliationRepo{db},
	}
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// actors

type actorRepo struct{ db *DB }

func (r *actorRepo) Create(_ context.Context, actor *domain.Actor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if actor.Role == domain.RoleAdministrator {
		for _, a := range r.db.actors {
			if a.Role == domain.RoleAdministrator {
				return repository.ErrDuplicateAdministrator
			}
		}
	}
	now := time.Now().UTC()
	actor.ID = uuid.NewString()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	actor.UpdatedAt = actor.CreatedAt
	r.db.actors[actor.ID] = cloneActor(actor)
	return nil
}

func (r *actorRepo) Update(_ context.Context, actor *domain.Actor) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.actors[actor.ID]; !ok {
		return repository.ErrNotFound
	}
	if actor.Role == domain.RoleAdministrator {
		for id, a := range r.db.actors {
			if id != actor.ID && a.Role == domain.RoleAdministrator {
				return repository.ErrDuplicateAdministrator
			}
		}
	}
	actor.UpdatedAt = time.Now().UTC()
	r.db.actors[actor.ID] = cloneActor(actor)
	return nil
}

func (r *actorRepo) GetByID(_ context.Context, id string) (*domain.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.actors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneActor(a), nil
}

func (r *actorRepo) List(_ context.Context, filter repository.ActorFilter) ([]domain.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Actor
	for _, a := range r.db.sortedActors() {
		if filter.Role != nil && a.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneActor(a))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *actorRepo) OldestActive(_ context.Context, role domain.Role, branch string) (*domain.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.sortedActors() {
		if a.Role == role && a.Active() && a.InBranch(branch) {
			return cloneActor(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *actorRepo) ListActiveByRoles(_ context.Context, roles ...domain.Role) ([]domain.Actor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Actor
	for _, a := range r.db.sortedActors() {
		if !a.Active() {
			continue
		}
		for _, role := range roles {
			if a.Role == role {
				out = append(out, *cloneActor(a))
				break
			}
		}
	}
	return out, nil
}

func (r *actorRepo) CountByRole(_ context.Context, role domain.Role) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for _, a := range r.db.actors {
		if a.Role == role {
			count++
		}
	}
	return count, nil
}

func (db *DB) sortedActors() []*domain.Actor {
	out := make([]*domain.Actor, 0, len(db.actors))
	for _, a := range db.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneActor(a *domain.Actor) *domain.Actor {
	c := *a
	c.Branches = append([]string(nil), a.Branches...)
	return &c
}

// branches

type branchRepo struct{ db *DB }

func (r *branchRepo) Upsert(_ context.Context, branch repository.Branch) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.branches[branch.Acronym] = branch
	return nil
}

func (r *branchRepo) ListActive(_ context.Context) ([]repository.Branch, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []repository.Branch
	for _, b := range r.db.branches {
		if b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Acronym < out[j].Acronym })
	return out, nil
}

// tickets

type ticketRepo struct{ db *DB }

func (r *ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.tickets {
		if t.Number == ticket.Number {
			return repository.ErrDuplicateNumber
		}
	}
	ticket.ID = uuid.NewString()
	ticket.UpdatedAt = ticket.CreatedAt
	r.db.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *ticketRepo) Update(_ context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Status != from {
		return repository.ErrStaleState
	}
	c := cloneTicket(ticket)
	c.Number = existing.Number
	c.Branch = existing.Branch
	c.CreatorID = existing.CreatorID
	c.CreatedAt = existing.CreatedAt
	r.db.tickets[ticket.ID] = c
	return nil
}

func (r *ticketRepo) MarkConverted(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Status.Terminal() {
		return repository.ErrStaleState
	}
	t.Status = domain.TicketStatusConvertedToIncident
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (r *ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.db.tickets {
		if !matchTicket(t, filter) {
			continue
		}
		out = append(out, *cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func matchTicket(t *domain.Ticket, f repository.TicketFilter) bool {
	if f.CreatorID != nil && t.CreatorID != *f.CreatorID {
		return false
	}
	if f.AssignableTo != nil && t.AssigneeID != nil && *t.AssigneeID != *f.AssignableTo {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Branches) > 0 && !containsString(f.Branches, t.Branch) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == t.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if p == t.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.BreachedAt != nil {
		if !t.Status.Open() || t.SLADueAt == nil || !t.SLADueAt.Before(*f.BreachedAt) {
			return false
		}
	}
	if f.SearchTerm != nil && strings.TrimSpace(*f.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func (r *ticketRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.tickets, id)
	return nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.AssigneeID = cloneStr(t.AssigneeID)
	c.SLADueAt = cloneTime(t.SLADueAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	return &c
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// comments

type commentRepo struct{ db *DB }

func (r *commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	comment.ID = uuid.NewString()
	c := *comment
	r.db.comments = append(r.db.comments, &c)
	return nil
}

func (r *commentRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Comment
	for _, c := range r.db.comments {
		if c.TicketID != ticketID || (c.Internal && !includeInternal) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *commentRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.comments[:0]
	for _, c := range r.db.comments {
		if c.TicketID != ticketID {
			kept = append(kept, c)
		}
	}
	r.db.comments = kept
	return nil
}

// incidents

type incidentRepo struct{ db *DB }

func (r *incidentRepo) Create(_ context.Context, incident *domain.Incident) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, i := range r.db.incidents {
		if i.Number == incident.Number {
			return repository.ErrDuplicateNumber
		}
		if incident.SourceTicketID != nil && i.SourceTicketID != nil && *i.SourceTicketID == *incident.SourceTicketID {
			return repository.ErrDuplicateSource
		}
	}
	incident.ID = uuid.NewString()
	incident.UpdatedAt = incident.CreatedAt
	r.db.incidents[incident.ID] = cloneIncident(incident)
	return nil
}

func (r *incidentRepo) Update(_ context.Context, incident *domain.Incident, from domain.IncidentStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.incidents[incident.ID]
	if !ok || existing.Status == domain.IncidentStatusClosed || existing.Status != from {
		return repository.ErrStaleState
	}
	c := cloneIncident(incident)
	c.Number = existing.Number
	c.SourceTicketID = cloneStr(existing.SourceTicketID)
	c.AffectedAsset = existing.AffectedAsset
	c.AffectedUserID = cloneStr(existing.AffectedUserID)
	c.CreatorID = existing.CreatorID
	c.CreatedAt = existing.CreatedAt
	r.db.incidents[incident.ID] = c
	return nil
}

func (r *incidentRepo) GetByID(_ context.Context, id string) (*domain.Incident, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	i, ok := r.db.incidents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneIncident(i), nil
}

func (r *incidentRepo) GetBySourceTicket(_ context.Context, ticketID string) (*domain.Incident, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, i := range r.db.incidents {
		if i.SourceTicketID != nil && *i.SourceTicketID == ticketID {
			return cloneIncident(i), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *incidentRepo) List(_ context.Context, filter repository.IncidentFilter) ([]domain.Incident, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Incident
	for _, i := range r.db.incidents {
		if filter.AffectedUserID != nil && (i.AffectedUserID == nil || *i.AffectedUserID != *filter.AffectedUserID) {
			continue
		}
		if filter.AssigneeID != nil && (i.AssigneeID == nil || *i.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.Branch != nil && i.Branch != *filter.Branch {
			continue
		}
		if len(filter.Statuses) > 0 {
			found := false
			for _, s := range filter.Statuses {
				if s == i.Status {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if len(filter.Severities) > 0 {
			found := false
			for _, s := range filter.Severities {
				if s == i.Severity {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *cloneIncident(i))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].Number > out[b].Number
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func cloneIncident(i *domain.Incident) *domain.Incident {
	c := *i
	c.SourceTicketID = cloneStr(i.SourceTicketID)
	c.AssigneeID = cloneStr(i.AssigneeID)
	c.AffectedUserID = cloneStr(i.AffectedUserID)
	c.RootCause = cloneStr(i.RootCause)
	c.ResolutionSummary = cloneStr(i.ResolutionSummary)
	c.TriagedAt = cloneTime(i.TriagedAt)
	c.ContainedAt = cloneTime(i.ContainedAt)
	c.RecoveredAt = cloneTime(i.RecoveredAt)
	c.ClosedAt = cloneTime(i.ClosedAt)
	return &c
}

// timeline

type timelineRepo struct{ db *DB }

func (r *timelineRepo) Create(_ context.Context, entry *domain.TimelineEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entry.ID = uuid.NewString()
	c := *entry
	r.db.timeline = append(r.db.timeline, &c)
	return nil
}

func (r *timelineRepo) AppendOpen(_ context.Context, entry *domain.TimelineEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	incident, ok := r.db.incidents[entry.IncidentID]
	if !ok {
		return repository.ErrNotFound
	}
	if incident.Status == domain.IncidentStatusClosed {
		return repository.ErrStaleState
	}
	entry.ID = uuid.NewString()
	c := *entry
	r.db.timeline = append(r.db.timeline, &c)
	return nil
}

func (r *timelineRepo) ListByIncident(_ context.Context, incidentID string, includeInternal bool) ([]domain.TimelineEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.TimelineEntry
	for _, e := range r.db.timeline {
		if e.IncidentID != incidentID || (e.Internal && !includeInternal) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// sla rules

type slaRuleRepo struct{ db *DB }

func (r *slaRuleRepo) conflicts(rule *domain.SLARule) bool {
	if !rule.Active {
		return false
	}
	for id, existing := range r.db.slaRules {
		if id != rule.ID && existing.Active && existing.Priority == rule.Priority {
			return true
		}
	}
	return false
}

func (r *slaRuleRepo) Create(_ context.Context, rule *domain.SLARule) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.conflicts(rule) {
		return repository.ErrDuplicateActiveRule
	}
	rule.ID = uuid.NewString()
	rule.UpdatedAt = rule.CreatedAt
	c := *rule
	r.db.slaRules[rule.ID] = &c
	return nil
}

func (r *slaRuleRepo) Update(_ context.Context, rule *domain.SLARule) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.slaRules[rule.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.conflicts(rule) {
		return repository.ErrDuplicateActiveRule
	}
	c := *rule
	c.CreatedAt = existing.CreatedAt
	r.db.slaRules[rule.ID] = &c
	return nil
}

func (r *slaRuleRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.slaRules[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.slaRules, id)
	return nil
}

func (r *slaRuleRepo) GetByID(_ context.Context, id string) (*domain.SLARule, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rule, ok := r.db.slaRules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *rule
	return &c, nil
}

func (r *slaRuleRepo) ActiveByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLARule, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rule := range r.db.slaRules {
		if rule.Active && rule.Priority == priority {
			c := *rule
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *slaRuleRepo) List(_ context.Context) ([]domain.SLARule, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.SLARule, 0, len(r.db.slaRules))
	for _, rule := range r.db.slaRules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

// audit

type auditRepo struct{ db *DB }

func (r *auditRepo) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *entry
	c.Details = make(map[string]any, len(entry.Details))
	for k, v := range entry.Details {
		c.Details[k] = v
	}
	r.db.audit = append(r.db.audit, &c)
	return nil
}

func (r *auditRepo) List(_ context.Context, filter repository.AuditFilter) ([]domain.AuditLogEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.AuditLogEntry
	for i := len(r.db.audit) - 1; i >= 0; i-- {
		e := r.db.audit[i]
		if filter.ResourceType != nil && e.ResourceType != *filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && e.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		out = append(out, *e)
	}
	return page(out, filter.Limit, filter.Offset), nil
}

// notifications

type notificationRepo struct{ db *DB }

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *n
	c.Read = false
	c.ReadAt = nil
	r.db.notifications = append(r.db.notifications, &c)
	return nil
}

func (r *notificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, n := range r.db.notifications {
		if n.ID == id {
			c := *n
			c.ReadAt = cloneTime(n.ReadAt)
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Notification
	for i := len(r.db.notifications) - 1; i >= 0; i-- {
		n := r.db.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		c := *n
		c.ReadAt = cloneTime(n.ReadAt)
		out = append(out, c)
	}
	return page(out, limit, offset), nil
}

func (r *notificationRepo) MarkRead(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, n := range r.db.notifications {
		if n.ID == id && !n.Read {
			n.Read = true
			n.ReadAt = &at
		}
	}
	return nil
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var count int64
	for _, n := range r.db.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			count++
		}
	}
	return count, nil
}

// sequences

type sequenceRepo struct{ db *DB }

func (r *sequenceRepo) Next(_ context.Context, scope string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.counters[scope]++
	return r.db.counters[scope], nil
}

// attachments

type attachmentRepo struct{ db *DB }

func (r *attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	attachment.ID = uuid.NewString()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	c := *attachment
	r.db.attachments = append(r.db.attachments, &c)
	return nil
}

func (r *attachmentRepo) ListByRecord(_ context.Context, recordType domain.ResourceType, recordID string) ([]domain.Attachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Attachment
	for _, a := range r.db.attachments {
		if a.RecordType == recordType && a.RecordID == recordID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *attachmentRepo) DeleteByRecord(_ context.Context, recordType domain.ResourceType, recordID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.attachments[:0]
	for _, a := range r.db.attachments {
		if a.RecordType != recordType || a.RecordID != recordID {
			kept = append(kept, a)
		}
	}
	r.db.attachments = kept
	return nil
}

// reconciliations

type reconciliationRepo struct{ db *DB }

func (r *reconciliationRepo) Create(_ context.Context, marker *domain.Reconciliation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	marker.ID = uuid.NewString()
	c := *marker
	r.db.reconciliations = append(r.db.reconciliations, &c)
	return nil
}

func (r *reconciliationRepo) List(_ context.Context, pendingOnly bool, limit int) ([]domain.Reconciliation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Reconciliation
	for _, m := range r.db.reconciliations {
		if pendingOnly && m.ResolvedAt != nil {
			continue
		}
		c := *m
		c.ResolvedAt = cloneTime(m.ResolvedAt)
		out = append(out, c)
	}
	return page(out, limit, 0), nil
}

func (r *reconciliationRepo) Resolve(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.reconciliations {
		if m.ID == id && m.ResolvedAt == nil {
			m.ResolvedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *reconciliationRepo) Abandon(_ context.Context, id string, at time.Time, reason string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.reconciliations {
		if m.ID == id && m.ResolvedAt == nil {
			m.ResolvedAt = &at
			m.Abandoned = true
			m.Error = reason
			return nil
		}
	}
	return repository.ErrNotFound
}
