package branch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/repository"
)

// Source lists the active branches.
type Source interface {
	ListActive(ctx context.Context) ([]repository.Branch, error)
}

// Directory is a read-through cache of valid branch acronyms. Entries older than the freshness
// window are reloaded on the next read.
type Directory struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	acronyms []string
	loadedAt time.Time
	loaded   bool
}

// NewDirectory builds a directory over source. A nil clock defaults to time.Now.
func NewDirectory(source Source, ttl time.Duration, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{source: source, ttl: ttl, now: now}
}

// ValidBranchAcronyms returns the cached acronyms, reloading them when stale.
func (d *Directory) ValidBranchAcronyms(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	if d.loaded && d.now().Sub(d.loadedAt) < d.ttl {
		out := append([]string(nil), d.acronyms...)
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	branches, err := d.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	acronyms := make([]string, 0, len(branches))
	for _, b := range branches {
		acronyms = append(acronyms, b.Acronym)
	}

	d.mu.Lock()
	d.acronyms = acronyms
	d.loadedAt = d.now()
	d.loaded = true
	d.mu.Unlock()

	return append([]string(nil), acronyms...), nil
}

// IsValid reports whether acronym names an active branch. Matching is case-insensitive.
func (d *Directory) IsValid(ctx context.Context, acronym string) (bool, error) {
	acronyms, err := d.ValidBranchAcronyms(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range acronyms {
		if strings.EqualFold(a, acronym) {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached set so the next read hits the source.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.loaded = false
	d.acronyms = nil
	d.mu.Unlock()
}
