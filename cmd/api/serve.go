package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/attachment"
	"github.com/spec-kit/helpdesk/internal/broadcast"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

func newServeCommand() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer rt.close()
			logger := rt.logger

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := rt.openStore(ctx, rt.cfg.Postgres.RunMigrations); err != nil {
				return err
			}

			needRedis := rt.cfg.Notification.Broadcast == "redis" || rt.cfg.RateLimit.Max > 0
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			rdb, err := persistence.NewRedis(pingCtx, rt.cfg.Redis, logger)
			cancelPing()
			if err != nil {
				if needRedis || rdb == nil {
					return err
				}
				logger.Warn("redis unavailable; readiness will report it", zap.Error(err))
			}
			defer rdb.Close()

			deps := map[string]handlers.Pinger{"redis": rdb}
			if rt.pg != nil {
				deps["postgres"] = rt.pg
			}

			channels := broadcast.Fanout{}
			switch rt.cfg.Notification.Broadcast {
			case "redis":
				channels = append(channels, broadcast.NewRedis(rdb.Client))
			case "nats":
				conn, err := broadcast.ConnectNATS(rt.cfg.Notification.NATSURL, rt.cfg.App.Name)
				if err != nil {
					return err
				}
				defer conn.Drain() //nolint:errcheck
				channels = append(channels, broadcast.NewNATS(conn))
			}

			var remover attachment.ObjectRemover
			if rt.cfg.Storage.S3Bucket != "" {
				s3, err := attachment.NewS3Remover(ctx, rt.cfg.Storage)
				if err != nil {
					return err
				}
				remover = s3
			}
			attachments := attachment.NewStore(rt.store.Attachments, remover, logger)

			if email := broadcast.NewEmail(rt.cfg.Notification, rt.store.Actors); email != nil {
				channels = append(channels, email)
			}

			var limiterStorage fiber.Storage
			if rt.cfg.RateLimit.Max > 0 {
				storage, err := rdb.LimiterStorage()
				if err != nil {
					return err
				}
				defer storage.Close() //nolint:errcheck
				limiterStorage = storage
			}

			container, err := app.New(app.Options{
				Config:           rt.cfg,
				Logger:           logger,
				Store:            rt.store,
				Broadcaster:      channels,
				Attachments:      attachments,
				RateLimitStorage: limiterStorage,
				Dependencies:     deps,
			})
			if err != nil {
				return err
			}
			container.StartWorkers(ctx)

			go func() {
				logger.Info("http server listening", zap.String("addr", rt.cfg.App.Addr()))
				if err := container.App.Listen(rt.cfg.App.Addr()); err != nil {
					logger.Error("fiber listen", zap.Error(err))
					cancel()
				}
			}()

			waitForShutdown(ctx, logger)

			if err := container.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			container.StopWorkers()
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests")
	return cmd
}

func waitForShutdown(ctx context.Context, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(ctx.Err()))
	}
}
