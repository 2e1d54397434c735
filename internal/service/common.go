package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// BranchValidator reports whether a branch acronym is known.
type BranchValidator interface {
	IsValid(ctx context.Context, acronym string) (bool, error)
}

// AttachmentCollaborator manages blobs attached to tickets and incidents.
type AttachmentCollaborator interface {
	ListAttachments(ctx context.Context, recordType domain.ResourceType, recordID string) ([]domain.Attachment, error)
	DeleteAttachments(ctx context.Context, recordType domain.ResourceType, recordID string) error
}

func clockOrDefault(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

// withinTx runs fn in a store transaction when tx is available, otherwise directly.
func withinTx(ctx context.Context, tx repository.Transactor, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithinTx(ctx, fn)
}

// storeError maps repository failures onto the API taxonomy.
func storeError(resource string, id string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{resource + "_id": id})
	}
	return apperrors.NewDependencyFailure("store", err)
}

func requireActor(actor *domain.Actor) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Active() {
		return apperrors.NewForbidden("actor is inactive")
	}
	return nil
}

func ticketResource(t *domain.Ticket) rbac.Resource {
	return rbac.Resource{
		Kind:       rbac.KindTicket,
		OwnerID:    t.CreatorID,
		AssigneeID: t.AssigneeID,
		Branch:     t.Branch,
		Open:       t.Status.Open(),
	}
}

func incidentResource(i *domain.Incident) rbac.Resource {
	owner := ""
	if i.AffectedUserID != nil {
		owner = *i.AffectedUserID
	}
	return rbac.Resource{
		Kind:       rbac.KindIncident,
		OwnerID:    owner,
		AssigneeID: i.AssigneeID,
		Branch:     i.Branch,
		Open:       i.Status != domain.IncidentStatusClosed,
	}
}

func required(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
}

func strPtr(s string) *string {
	return &s
}

func sameStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// stringPreview shortens body to at most max runes, never splitting a character.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
