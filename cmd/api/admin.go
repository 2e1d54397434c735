package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

const commandTimeout = 30 * time.Second

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.requirePostgres(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			rt.pg = pg
			if err := persistence.RunMigrations(ctx, pg.Pool, rt.cfg.Postgres.MigrationsDir, rt.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newBootstrapAdminCommand() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the administrator when none exists and print an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.requirePostgres(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			if err := rt.openStore(ctx, true); err != nil {
				return err
			}
			container, err := app.New(app.Options{Config: rt.cfg, Logger: rt.logger, Store: rt.store})
			if err != nil {
				return err
			}

			admin, created, err := container.Actors.BootstrapAdmin(ctx, name, email)
			if err != nil {
				return err
			}
			token, expiresAt, err := container.Tokens.GenerateToken(admin.ID, admin.Role)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "administrator created: %s <%s>\n", admin.ID, admin.Email)
			} else {
				fmt.Fprintf(out, "administrator already exists: %s <%s>\n", admin.ID, admin.Email)
			}
			fmt.Fprintf(out, "token (expires %s):\n%s\n", expiresAt.Format(time.RFC3339), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Administrator", "administrator display name")
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an existing active actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.requirePostgres(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			if err := rt.openStore(ctx, false); err != nil {
				return err
			}
			actor, err := rt.store.Actors.GetByID(ctx, actorID)
			if err != nil {
				return fmt.Errorf("load actor %s: %w", actorID, err)
			}
			if !actor.Active() {
				return fmt.Errorf("actor %s is inactive", actorID)
			}
			tokens := auth.NewTokenManager(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.AccessTokenTTLMinutes)
			token, _, err := tokens.GenerateToken(actor.ID, actor.Role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor-id", "", "actor to issue the token for")
	_ = cmd.MarkFlagRequired("actor-id")
	return cmd
}
