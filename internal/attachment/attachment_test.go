package attachment

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

type recordingRemover struct {
	keys []string
	err  error
}

func (r *recordingRemover) RemoveObjects(_ context.Context, keys []string) error {
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, keys...)
	return nil
}

func TestDeleteAttachments(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, key := range []string{"tickets/t1/a.png", "tickets/t1/b.log"} {
		if err := store.Attachments.Create(ctx, &domain.Attachment{RecordType: domain.ResourceTicket, RecordID: "t1", StorageKey: key}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := store.Attachments.Create(ctx, &domain.Attachment{RecordType: domain.ResourceTicket, RecordID: "t2", StorageKey: "tickets/t2/c.txt"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Run("blob failure keeps metadata", func(t *testing.T) {
		remover := &recordingRemover{err: errors.New("access denied")}
		s := NewStore(store.Attachments, remover, nil)
		if err := s.DeleteAttachments(ctx, domain.ResourceTicket, "t1"); err == nil {
			t.Fatalf("expected error")
		}
		items, err := s.ListAttachments(ctx, domain.ResourceTicket, "t1")
		if err != nil || len(items) != 2 {
			t.Fatalf("metadata = %d, %v", len(items), err)
		}
	})

	t.Run("removes blobs then metadata", func(t *testing.T) {
		remover := &recordingRemover{}
		s := NewStore(store.Attachments, remover, nil)
		if err := s.DeleteAttachments(ctx, domain.ResourceTicket, "t1"); err != nil {
			t.Fatalf("DeleteAttachments: %v", err)
		}
		if len(remover.keys) != 2 {
			t.Fatalf("removed keys = %v", remover.keys)
		}
		items, _ := s.ListAttachments(ctx, domain.ResourceTicket, "t1")
		if len(items) != 0 {
			t.Fatalf("metadata left behind: %+v", items)
		}
		other, _ := s.ListAttachments(ctx, domain.ResourceTicket, "t2")
		if len(other) != 1 {
			t.Fatalf("unrelated record touched: %+v", other)
		}
	})

	t.Run("no attachments is a no-op", func(t *testing.T) {
		remover := &recordingRemover{err: errors.New("must not be called")}
		s := NewStore(store.Attachments, remover, nil)
		if err := s.DeleteAttachments(ctx, domain.ResourceIncident, "none"); err != nil {
			t.Fatalf("DeleteAttachments: %v", err)
		}
	})

	t.Run("metadata only without blob store", func(t *testing.T) {
		s := NewStore(store.Attachments, nil, nil)
		if err := s.DeleteAttachments(ctx, domain.ResourceTicket, "t2"); err != nil {
			t.Fatalf("DeleteAttachments: %v", err)
		}
	})
}
