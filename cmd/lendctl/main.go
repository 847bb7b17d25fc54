package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lendmatch/backend/config"
	"github.com/lendmatch/backend/internal/delivery/cli"
	"github.com/lendmatch/backend/internal/domain"
	"github.com/lendmatch/backend/internal/infrastructure/cache"
	"github.com/lendmatch/backend/internal/infrastructure/staff"
	"github.com/lendmatch/backend/internal/logging"
	"github.com/lendmatch/backend/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		return 1
	}

	// Human-readable logs when someone is watching
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.Log.Format = "console"
	}
	logger, err := logging.New(cfg.Log, zap.String("service", "lendctl"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	store, err := cache.New(cfg.Cache)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open cache:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	clock := domain.SystemClock{}
	window := usecase.NewFetchWindow(cfg.Window.FirstHourUTC)
	client := staff.NewClient(cfg.Client.SyncURL, "", "", cfg.Client.Timeout, staff.WithLogger(logger.Logger))
	persistent := usecase.NewPersistentCache(store, cfg.Cache.TTL, clock, logger.Logger)
	normalizer := usecase.NewNormalizer(usecase.NormalizerConfig{MinSuccessRate: cfg.Normalizer.MinSuccessRate}, clock, logger.Logger)
	catalogSync := usecase.NewCatalogSync(client, normalizer, persistent, window, clock, logger.Logger)

	cli.SetServices(cli.Services{
		Sync:      catalogSync,
		Cache:     persistent,
		Window:    window,
		Engine:    usecase.NewRecommendationEngine(logger.Logger),
		Scheduler: usecase.NewScheduler(catalogSync, window, clock, cfg.Window.CheckInterval, logger.Logger),
		Clock:     clock,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
