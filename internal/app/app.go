package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/branch"
	"github.com/spec-kit/helpdesk/internal/broadcast"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/numbering"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/rbac"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/worker"
)

// Options carries the infrastructure a Container is assembled from. Only Config and Store are
// required.
type Options struct {
	Config           *config.Config
	Logger           *zap.Logger
	Store            *repository.Store
	Broadcaster      broadcast.Broadcaster
	Attachments      service.AttachmentCollaborator
	RateLimitStorage fiber.Storage
	Dependencies     map[string]handlers.Pinger
	Clock            func() time.Time
}

// Container holds the assembled services, HTTP app and background workers.
type Container struct {
	App           *fiber.App
	Tokens        *auth.TokenManager
	Metrics       *observability.Metrics
	Branches      *branch.Directory
	Actors        *service.ActorService
	Tickets       *service.TicketService
	Incidents     *service.IncidentService
	Conversions   *service.ConversionService
	Notifications *worker.NotificationWorker
	Reconciler    *worker.ReconciliationWorker
	logger        *zap.Logger
}

// New wires every component over opts.Store.
func New(opts Options) (*Container, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, fmt.Errorf("app: config and store are required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	channel := opts.Broadcaster
	if channel == nil {
		channel = broadcast.Noop{}
	}
	store := opts.Store

	guard, err := rbac.NewGuard()
	if err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics()
	bus := events.NewInMemoryDispatcher(logger)
	directory := branch.NewDirectory(store.Branches, cfg.Reference.BranchCacheTTL(), clock)
	numbers := numbering.NewService(store.Sequences)

	dispatcher := service.NewDispatcher(service.DispatcherDependencies{
		AuditRepo:        store.Audit,
		NotificationRepo: store.Notifications,
		ActorRepo:        store.Actors,
		Events:           bus,
		Metrics:          metrics,
		Logger:           logger,
		Clock:            clock,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets,
		CommentRepo: store.Comments,
		ActorRepo:   store.Actors,
		Transactor:  store.Tx,
		Attachments: opts.Attachments,
		Branches:    directory,
		Guard:       guard,
		SLA:         sla.NewCalculator(store.SLARules),
		Numbers:     numbers,
		Dispatcher:  dispatcher,
		Clock:       clock,
	})
	incidents := service.NewIncidentService(service.IncidentDependencies{
		IncidentRepo: store.Incidents,
		TimelineRepo: store.Timeline,
		ActorRepo:    store.Actors,
		Transactor:   store.Tx,
		Branches:     directory,
		Guard:        guard,
		Numbers:      numbers,
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	conversions := service.NewConversionService(service.ConversionDependencies{
		TicketRepo:         store.Tickets,
		CommentRepo:        store.Comments,
		IncidentRepo:       store.Incidents,
		TimelineRepo:       store.Timeline,
		ActorRepo:          store.Actors,
		ReconciliationRepo: store.Reconciliations,
		Transactor:         store.Tx,
		Guard:              guard,
		Numbers:            numbers,
		Dispatcher:         dispatcher,
		Metrics:            metrics,
		Logger:             logger,
		Clock:              clock,
	})
	slaRules := service.NewSLAService(service.SLADependencies{
		RuleRepo:   store.SLARules,
		Guard:      guard,
		Dispatcher: dispatcher,
		Clock:      clock,
	})
	actors := service.NewActorService(service.ActorDependencies{
		ActorRepo:  store.Actors,
		Branches:   directory,
		Guard:      guard,
		Dispatcher: dispatcher,
		Clock:      clock,
	})
	inbox := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: store.Notifications,
		Guard:            guard,
		Clock:            clock,
	})
	audit := service.NewAuditService(store.Audit, guard)

	notifier := worker.NewNotificationWorker(channel, cfg.Notification.QueueSize, logger, metrics)
	notifier.Register(bus)
	reconciler := worker.NewReconciliationWorker(conversions, cfg.Workers.ReconcileInterval(), logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:          cfg.App.RequestTimeout(),
		RateLimitMax:     cfg.RateLimit.Max,
		RateLimitWindow:  cfg.RateLimit.Window(),
		RateLimitStorage: opts.RateLimitStorage,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, opts.Dependencies),
		Tickets:        handlers.NewTicketsHandler(tickets, conversions, opts.Attachments),
		Incidents:      handlers.NewIncidentsHandler(incidents),
		SLA:            handlers.NewSLAHandler(slaRules),
		Notifications:  handlers.NewNotificationsHandler(inbox),
		Admin:          handlers.NewAdminHandler(actors, audit, conversions, directory),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Actors),
		Metrics:        metrics,
	})

	return &Container{
		App:           app,
		Tokens:        tokens,
		Metrics:       metrics,
		Branches:      directory,
		Actors:        actors,
		Tickets:       tickets,
		Incidents:     incidents,
		Conversions:   conversions,
		Notifications: notifier,
		Reconciler:    reconciler,
		logger:        logger,
	}, nil
}

// SeedBranches makes sure every acronym exists and is active.
func SeedBranches(ctx context.Context, store *repository.Store, acronyms []string) error {
	for _, acronym := range acronyms {
		if err := store.Branches.Upsert(ctx, repository.Branch{Acronym: acronym, Name: acronym, Active: true}); err != nil {
			return fmt.Errorf("seed branch %s: %w", acronym, err)
		}
	}
	return nil
}

// StartWorkers launches the background workers.
func (c *Container) StartWorkers(ctx context.Context) {
	c.Notifications.Start()
	c.Reconciler.Start(ctx)
	c.logger.Info("background workers started")
}

// StopWorkers stops the workers, delivering notifications that are already queued.
func (c *Container) StopWorkers() {
	c.Reconciler.Stop()
	c.Notifications.Stop()
}
