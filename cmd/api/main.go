package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-engine/internal/api/http"
	"github.com/spec-kit/support-engine/internal/api/http/handlers"
	"github.com/spec-kit/support-engine/internal/auth"
	"github.com/spec-kit/support-engine/internal/classifier"
	"github.com/spec-kit/support-engine/internal/compliance"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/datasource"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/extractor"
	"github.com/spec-kit/support-engine/internal/flow"
	"github.com/spec-kit/support-engine/internal/intents"
	"github.com/spec-kit/support-engine/internal/kb"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/persistence"
	"github.com/spec-kit/support-engine/internal/render"
	"github.com/spec-kit/support-engine/internal/repository"
	"github.com/spec-kit/support-engine/internal/service"
	"github.com/spec-kit/support-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var tickets repository.TicketRepository
	var pgProbe *persistence.Postgres
	if pool != nil {
		tickets = repository.NewTicketRepository(pool)
		pgProbe = pg
	} else {
		tickets = repository.NewMemoryTicketRepository()
	}

	var redis *persistence.Redis
	var locker flow.Locker = flow.NewKeyedMutex()
	if cfg.Redis.UseLock {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		locker = persistence.NewRedisLocker(redis, cfg.Redis.LockTTL())
	}

	schema, err := intents.Load(cfg.Engine.IntentsPath)
	if err != nil {
		logger.Fatal("failed to load intent schema", zap.Error(err))
	}
	matcher, err := kb.Load(cfg.Engine.KnowledgeBase)
	if err != nil {
		logger.Fatal("failed to load knowledge base", zap.Error(err))
	}
	store, err := datasource.Load(cfg.Engine.CatalogPath, schema)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	renderer, err := render.Load(cfg.Engine.TemplatesDir)
	if err != nil {
		logger.Fatal("failed to load templates", zap.Error(err))
	}
	checker, err := compliance.Load(cfg.Engine.CompliancePath)
	if err != nil {
		logger.Fatal("failed to load compliance lexicon", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	escalations := service.NewEscalationService(dispatcher, logger, cfg.Notify)
	worker.StartEscalationWorker(escalations)

	engine := flow.NewEngine(flow.Options{
		FAQThreshold: cfg.Engine.FAQThreshold,
	}, flow.Dependencies{
		Tickets:    tickets,
		Locker:     locker,
		Classifier: classifier.NewLexical(schema, cfg.Engine.IntentThreshold),
		FAQ:        matcher,
		Extractor:  extractor.NewRegex(store.ExtractorProducts()),
		Source:     store,
		Renderer:   renderer,
		Checker:    checker,
		Schema:     schema,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	channels, err := auth.NewChannelAuthenticator(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to init channel auth", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(channels.TokenManager())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pgProbe, redis),
		Auth:           handlers.NewAuthHandler(channels),
		Messages:       handlers.NewMessagesHandler(engine),
		Tickets:        handlers.NewTicketsHandler(tickets),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
