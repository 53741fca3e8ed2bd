package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/escalation-service/internal/agent"
	httptransport "github.com/spec-kit/escalation-service/internal/api/http"
	"github.com/spec-kit/escalation-service/internal/api/http/handlers"
	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/config"
	"github.com/spec-kit/escalation-service/internal/events"
	"github.com/spec-kit/escalation-service/internal/observability"
	"github.com/spec-kit/escalation-service/internal/persistence"
	"github.com/spec-kit/escalation-service/internal/relay"
	"github.com/spec-kit/escalation-service/internal/repository"
	"github.com/spec-kit/escalation-service/internal/service"
	"github.com/spec-kit/escalation-service/internal/speech"
	"github.com/spec-kit/escalation-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	customerRepo, knowledgeRepo, helpRequestRepo := buildRepositories(pg, logger)

	knowledgeService := service.NewKnowledgeService(service.KnowledgeDependencies{
		KnowledgeRepo: knowledgeRepo,
		Clock:         clk,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       metrics,
	})
	helpRequestService := service.NewHelpRequestService(service.HelpRequestDependencies{
		HelpRequestRepo: helpRequestRepo,
		CustomerRepo:    customerRepo,
		Knowledge:       knowledgeService,
		Clock:           clk,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Metrics:         metrics,
		Policy: service.LedgerPolicy{
			DefaultHorizon:        cfg.Escalation.Horizon(),
			FallbackMessage:       cfg.Escalation.FallbackMessage,
			RejectTerminalResolve: cfg.Escalation.RejectTerminalResolve,
		},
	})

	if cfg.Escalation.SeedData {
		err := service.SeedDemoData(ctx, service.SeedDependencies{
			Customers: customerRepo,
			Requests:  helpRequestRepo,
			Knowledge: knowledgeService,
			Clock:     clk,
		})
		if err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
		logger.Info("demo data loaded")
	}

	rooms := buildRelay(redis, logger)
	defer rooms.Close()

	agents := agent.NewPool(func() *agent.Agent {
		return agent.New(agent.Config{
			CustomerID:       cfg.Agent.CallerCustomerID,
			DeferralPhrase:   cfg.Agent.DeferralPhrase,
			CaptureCeiling:   cfg.Agent.CaptureCeiling(),
			RecordUsageOnHit: cfg.Agent.RecordUsageOnHit,
		}, agent.Dependencies{
			Knowledge:   knowledgeService,
			Escalator:   helpRequestService,
			Usage:       knowledgeService,
			Transcriber: speech.TextTranscriber{},
			Synthesizer: speech.LogSynthesizer{Logger: logger},
			Relay:       rooms,
			Clock:       clk,
			Logger:      logger,
			Metrics:     metrics,
		})
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		HelpRequests:  handlers.NewHelpRequestsHandler(helpRequestService),
		Knowledge:     handlers.NewKnowledgeHandler(knowledgeService),
		Relay:         handlers.NewRelayHandler(relay.NewTokenIssuer(cfg.Relay.APIKey, cfg.Relay.APISecret, cfg.Relay.TokenTTL(), nil), cfg.Relay.URL),
		Conversations: handlers.NewConversationHandler(agents),
		Metrics:       metrics,
	})

	sweeper := worker.NewTimeoutSweeper(helpRequestService, cfg.Escalation.SweepInterval(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		agents.Close()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", zap.Error(err))
	}
}

func buildRepositories(pg *persistence.Postgres, logger *zap.Logger) (repository.CustomerRepository, repository.KnowledgeRepository, repository.HelpRequestRepository) {
	if !pg.Enabled() {
		logger.Warn("using in-memory repositories; data is lost on restart")
		return repository.NewMemoryCustomerRepository(),
			repository.NewMemoryKnowledgeRepository(),
			repository.NewMemoryHelpRequestRepository()
	}
	pool := pg.PoolHandle()
	return repository.NewCustomerRepository(pool),
		repository.NewKnowledgeRepository(pool),
		repository.NewHelpRequestRepository(pool)
}

func buildRelay(redis *persistence.Redis, logger *zap.Logger) relay.Relay {
	if redis.Enabled() {
		return relay.NewRedisRelay(redis.Client, logger)
	}
	return relay.NewMemoryRelay()
}
