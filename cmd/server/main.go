package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lendmatch/backend/config"
	httpDelivery "github.com/lendmatch/backend/internal/delivery/http"
	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/notify"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
	"github.com/lendmatch/backend/internal/logging"
	"github.com/lendmatch/backend/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

func main() {
	reloads := make(chan *config.Config, 1)
	reloadErrs := make(chan error, 1)

	// Load configuration; edits to the config file are picked up below
	cfg, err := config.LoadAndWatch(
		func(next *config.Config, _ fsnotify.Event) {
			select {
			case reloads <- next:
			default:
			}
		},
		func(err error) {
			select {
			case reloadErrs <- err:
			default:
			}
		},
	)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log, zap.String("service", "lendmatch-backend"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lendmatch backend",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("upstream", cfg.Upstream.BaseURL+cfg.Upstream.ProductsPath))
	if cfg.Sync.SharedSecret == "" {
		logger.Warn("No sync shared secret configured; write endpoints are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize infrastructure dependencies
	client := staff.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.ProductsPath,
		cfg.Upstream.APIKey,
		cfg.Upstream.Timeout,
		staff.WithLogger(logger.Logger),
		staff.WithRateLimit(cfg.Upstream.RequestsPerHour),
	)
	events := notify.NewBroadcaster(logger.Logger)
	webhooks := notify.NewWebhookNotifier(cfg.Webhooks.URLs, cfg.Webhooks.Timeout, logger.Logger)

	// Initialize usecase layer
	store := usecase.NewCatalogStore(client, nil, logger.Logger)
	engine := usecase.NewRecommendationEngine(logger.Logger)

	// Listeners run under the store's write lock, so webhook delivery is
	// handed off to its own goroutine.
	var deliveries sync.WaitGroup
	store.Subscribe(func(event domain.ChangeEvent) {
		events.Notify(ctx, event)

		deliveries.Add(1)
		go func() {
			defer deliveries.Done()
			webhooks.Notify(context.Background(), event)
		}()
	})

	bootstrapCatalog(ctx, store, cfg, logger.Logger)

	handler := httpDelivery.NewHandler(store, engine, events, logger.Logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger.Logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go watchConfig(ctx, reloads, reloadErrs, logger, webhooks)

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	handler.Wait()
	deliveries.Wait()
	logger.Info("Server exited")
}

// bootstrapCatalog fills the store before the server accepts traffic: an
// upstream pull first, then the seed file, then the built-in sample catalog.
func bootstrapCatalog(ctx context.Context, store *usecase.CatalogStore, cfg *config.Config, logger *zap.Logger) {
	if cfg.Upstream.PullOnStart {
		pullCtx, cancel := context.WithTimeout(ctx, cfg.Upstream.Timeout+5*time.Second)
		result, err := store.Pull(pullCtx)
		cancel()
		if err == nil {
			logger.Info("Initial catalog pulled", zap.Int("count", result.Saved))
			return
		}
		logger.Warn("Initial pull failed, falling back to seed catalog", zap.Error(err))
	}

	if cfg.Sync.SeedFile != "" {
		products, err := usecase.LoadSeedFile(cfg.Sync.SeedFile, time.Now())
		if err == nil {
			result := store.Seed(products, domain.SourceFallback)
			logger.Info("Seeded catalog from file", zap.String("path", cfg.Sync.SeedFile), zap.Int("count", result.Saved))
			return
		}
		logger.Warn("Seed file unusable", zap.String("path", cfg.Sync.SeedFile), zap.Error(err))
	}

	result := store.Seed(usecase.DefaultSeedProducts(time.Now()), domain.SourceFallback)
	logger.Info("Seeded built-in sample catalog", zap.Int("count", result.Saved))
}

// watchConfig applies hot-reloadable settings: log level and webhook targets
func watchConfig(ctx context.Context, reloads <-chan *config.Config, reloadErrs <-chan error, logger *logging.Logger, webhooks *notify.WebhookNotifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-reloads:
			if err := logger.SetLevel(next.Log.Level); err != nil {
				logger.Warn("Ignoring log level change", zap.Error(err))
			}
			webhooks.SetTargets(next.Webhooks.URLs)
			logger.Info("Configuration reloaded",
				zap.String("log_level", logger.Level().String()),
				zap.Strings("webhook_targets", webhooks.Targets()))
		case err := <-reloadErrs:
			logger.Warn("Ignoring invalid configuration change", zap.Error(err))
		}
	}
}
