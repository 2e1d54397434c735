package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
	store  *repository.Store
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

// openStore connects to Postgres when a DSN is configured and falls back to the
// in-memory store otherwise.
func (r *environment) openStore(ctx context.Context, migrate bool) error {
	if r.cfg.Postgres.DSN == "" {
		r.logger.Warn("POSTGRES_DSN not set; using in-memory store")
		r.store = memory.NewStore()
		return app.SeedBranches(ctx, r.store, r.cfg.Reference.DefaultBranches)
	}
	pg, err := persistence.NewPostgres(ctx, r.cfg.Postgres, r.logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	r.pg = pg
	if migrate {
		if err := persistence.RunMigrations(ctx, pg.Pool, r.cfg.Postgres.MigrationsDir, r.logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	r.store = repository.NewPostgresStore(pg.Pool)
	return app.SeedBranches(ctx, r.store, r.cfg.Reference.DefaultBranches)
}

func (r *environment) requirePostgres() error {
	if r.cfg.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for this command")
	}
	return nil
}

func (r *environment) close() {
	r.pg.Close()
	_ = r.logger.Sync()
}
