package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("NOTIFY_BROADCAST", "")
	t.Setenv("DEFAULT_BRANCHES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != "8080" {
		t.Errorf("port: got %q, want 8080", cfg.App.Port)
	}
	if cfg.Notification.Broadcast != "redis" {
		t.Errorf("broadcast: got %q, want redis", cfg.Notification.Broadcast)
	}
	if len(cfg.Reference.DefaultBranches) != 1 || cfg.Reference.DefaultBranches[0] != "HQ" {
		t.Errorf("default branches: got %v", cfg.Reference.DefaultBranches)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("NOTIFY_BROADCAST", "NATS")
	t.Setenv("DEFAULT_BRANCHES", "hq, jkt ,")
	t.Setenv("BRANCH_CACHE_TTL_SECONDS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Addr() != "0.0.0.0:9090" {
		t.Errorf("addr: got %q", cfg.App.Addr())
	}
	if cfg.Notification.Broadcast != "nats" {
		t.Errorf("broadcast: got %q, want nats", cfg.Notification.Broadcast)
	}
	want := []string{"HQ", "JKT"}
	if len(cfg.Reference.DefaultBranches) != len(want) {
		t.Fatalf("branches: got %v, want %v", cfg.Reference.DefaultBranches, want)
	}
	for i := range want {
		if cfg.Reference.DefaultBranches[i] != want[i] {
			t.Errorf("branch %d: got %q, want %q", i, cfg.Reference.DefaultBranches[i], want[i])
		}
	}
	if cfg.Reference.BranchCacheTTL() != 10*time.Second {
		t.Errorf("ttl: got %v", cfg.Reference.BranchCacheTTL())
	}
}

func TestLoadRejectsUnknownBroadcast(t *testing.T) {
	t.Setenv("NOTIFY_BROADCAST", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown broadcast")
	}
}
