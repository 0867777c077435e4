package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"go-message-relay/internal/application/facade"
	"go-message-relay/internal/infrastructure/config"
	"go-message-relay/internal/infrastructure/hub"
	"go-message-relay/internal/infrastructure/logger"
	"go-message-relay/internal/infrastructure/metrics"
	"go-message-relay/internal/infrastructure/pubsub"
	"go-message-relay/internal/infrastructure/server"
	"go-message-relay/internal/infrastructure/storage/postgres"
	"go-message-relay/internal/interfaces/rest/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.NewLogrusLogger(logger.NewConfig(level, cfg.LogFormat, cfg.LogOutput, cfg.LogFilePath))

	sctx := WithSignal(context.Background())

	startupCtx, cancel := context.WithTimeout(sctx, 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(startupCtx, pool, log); err != nil {
		return err
	}

	rdb, err := pubsub.NewClient(startupCtx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warnf("failed to close redis client: %v", err)
		}
	}()

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	clock := clockwork.NewRealClock()

	hubInstance := hub.New(log, hub.WithMetrics(relayMetrics), hub.WithClock(clock))
	if err := hubInstance.Start(sctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	app := newApplication(cfg, log, pool, rdb, hubInstance, relayMetrics, clock)
	router := InitRouter(routerDeps{
		cfg:     cfg,
		log:     log,
		hub:     hubInstance,
		chat:    app.chat,
		limiter: middleware.NewIPRateLimiter(cfg.PublishRate, cfg.PublishBurst, clock),
		metrics: reg,
	})
	app.httpSrv = server.NewHTTPServer(cfg.HTTPAddr, router)

	log.Infof("relay listening on %s, notification channel %q", cfg.HTTPAddr, cfg.NotificationChannel)
	return app.Run(sctx)
}

type Application struct {
	cfg     *config.Config
	logger  logger.Logger
	httpSrv server.Server
	hub     *hub.Hub
	bridge  *hub.Bridge
	chat    *facade.ChatApplicationService
}

func newApplication(
	cfg *config.Config,
	log logger.Logger,
	pool *pgxpool.Pool,
	rdb *goredis.Client,
	hubInstance *hub.Hub,
	relayMetrics *metrics.RelayMetrics,
	clock clockwork.Clock,
) *Application {
	notifier := pubsub.NewNotifier(rdb, cfg.NotificationChannel, pubsub.NewBreakerSettings(log), log)
	subscriber := pubsub.NewSubscriber(rdb)

	return &Application{
		cfg:    cfg,
		logger: log.WithField("app", "relay"),
		hub:    hubInstance,
		bridge: hub.NewBridge(subscriber, cfg.NotificationChannel, hubInstance, log, relayMetrics),
		chat:   facade.NewChatApplicationService(postgres.NewMessageRepo(pool), notifier, clock, log),
	}
}

// Run serves HTTP and the notification bridge until ctx is done or either
// of them fails, then shuts both down.
func (app *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	eg.Go(func() error {
		err := app.bridge.Run(gctx)
		if err != nil {
			app.logger.Errorf("notification bridge stopped: %v", err)
		}
		return err
	})

	eg.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
		defer cancel()

		// Stop hub first so long-lived streams release their handlers.
		if err := app.hub.Stop(shutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(shutdownCtx)
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}

	app.logger.Info("relay stopped")
	return nil
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
