package branch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/repository"
)

type countingSource struct {
	branches []repository.Branch
	calls    int
	err      error
}

func (s *countingSource) ListActive(context.Context) ([]repository.Branch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.branches, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestDirectoryCachesWithinWindow(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{branches: []repository.Branch{{Acronym: "HQ", Active: true}}}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	dir := NewDirectory(src, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		if _, err := dir.ValidBranchAcronyms(ctx); err != nil {
			t.Fatalf("ValidBranchAcronyms: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 source call, got %d", src.calls)
	}

	src.branches = append(src.branches, repository.Branch{Acronym: "JKT", Active: true})
	clock.now = clock.now.Add(59 * time.Second)
	ok, _ := dir.IsValid(ctx, "jkt")
	if ok {
		t.Fatal("JKT visible before window elapsed")
	}

	clock.now = clock.now.Add(2 * time.Second)
	ok, err := dir.IsValid(ctx, "jkt")
	if err != nil || !ok {
		t.Fatalf("JKT after refresh: ok=%v err=%v", ok, err)
	}
	if src.calls != 2 {
		t.Fatalf("expected 2 source calls, got %d", src.calls)
	}
}

func TestDirectoryInvalidate(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{branches: []repository.Branch{{Acronym: "HQ", Active: true}}}
	dir := NewDirectory(src, time.Hour, nil)

	if _, err := dir.ValidBranchAcronyms(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	dir.Invalidate()
	if _, err := dir.ValidBranchAcronyms(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", src.calls)
	}
}

func TestDirectoryPropagatesSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	dir := NewDirectory(src, time.Hour, nil)
	if _, err := dir.IsValid(context.Background(), "HQ"); err == nil {
		t.Fatal("expected error")
	}
}
