package numbering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

func TestTicketNumbersIncreaseAndStayUnique(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore().Sequences)

	seen := make(map[string]struct{}, 1000)
	prev := ""
	for i := 0; i < 1000; i++ {
		number, err := svc.NextTicketNumber(ctx, "hq")
		if err != nil {
			t.Fatalf("NextTicketNumber: %v", err)
		}
		if _, dup := seen[number]; dup {
			t.Fatalf("duplicate number %s at iteration %d", number, i)
		}
		if prev != "" && number <= prev {
			t.Fatalf("number %s not greater than %s", number, prev)
		}
		seen[number] = struct{}{}
		prev = number
	}
	if prev != "TKT-HQ-001000" {
		t.Fatalf("last number: got %s", prev)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore().Sequences)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		gen  func() (string, error)
		want string
	}{
		{"ticket hq", func() (string, error) { return svc.NextTicketNumber(ctx, "HQ") }, "TKT-HQ-000001"},
		{"ticket jkt", func() (string, error) { return svc.NextTicketNumber(ctx, "JKT") }, "TKT-JKT-000001"},
		{"incident hq", func() (string, error) { return svc.NextIncidentNumber(ctx, "HQ", at) }, "INC-HQ-2025-000001"},
		{"incident no branch", func() (string, error) { return svc.NextIncidentNumber(ctx, "", at) }, "INC-2025-000001"},
		{"incident hq again", func() (string, error) { return svc.NextIncidentNumber(ctx, "HQ", at) }, "INC-HQ-2025-000002"},
		{"incident next year", func() (string, error) { return svc.NextIncidentNumber(ctx, "HQ", at.AddDate(1, 0, 0)) }, "INC-HQ-2026-000001"},
	}
	for _, tc := range cases {
		got, err := tc.gen()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("retries once on duplicate", func(t *testing.T) {
		svc := NewService(memory.NewStore().Sequences)
		var tried []string
		err := WithRetry(ctx, func(ctx context.Context) (string, error) {
			return svc.NextTicketNumber(ctx, "HQ")
		}, func(number string) error {
			tried = append(tried, number)
			if len(tried) == 1 {
				return repository.ErrDuplicateNumber
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithRetry: %v", err)
		}
		if len(tried) != 2 || tried[0] == tried[1] {
			t.Fatalf("expected two distinct attempts, got %v", tried)
		}
	})

	t.Run("gives up after second duplicate", func(t *testing.T) {
		attempts := 0
		err := WithRetry(ctx, func(context.Context) (string, error) { return "X", nil }, func(string) error {
			attempts++
			return repository.ErrDuplicateNumber
		})
		if !errors.Is(err, repository.ErrDuplicateNumber) || attempts != 2 {
			t.Fatalf("got err=%v attempts=%d", err, attempts)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		attempts := 0
		err := WithRetry(ctx, func(context.Context) (string, error) { return "X", nil }, func(string) error {
			attempts++
			return boom
		})
		if !errors.Is(err, boom) || attempts != 1 {
			t.Fatalf("got err=%v attempts=%d", err, attempts)
		}
	})
}
