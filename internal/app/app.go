package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"priceflow/internal/browser"
	"priceflow/internal/config"
	"priceflow/internal/detect"
	"priceflow/internal/extract"
	"priceflow/internal/monitor"
	"priceflow/internal/notify"
	"priceflow/internal/page"
	"priceflow/internal/scheduler"
	"priceflow/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// pipeline bundles the check machinery so run and check share the wiring.
type pipeline struct {
	manager *browser.Manager
	checker *monitor.Checker
}

func (a *App) buildPipeline(store *storage.Store) *pipeline {
	manager := browser.NewManager(browser.Options{
		Config: a.Config.Browser,
		Logger: a.Logger,
	})
	loader := page.NewLoader(page.Options{
		Config: a.Config.Browser,
		Logger: a.Logger,
	})

	strategies := []extract.Strategy{
		extract.NewAdapterStrategy(a.Logger),
		extract.NewStructuredDataStrategy(a.Logger),
	}
	if a.Config.Extraction.APIKey != "" {
		client := extract.NewAnthropicClient(a.Config.Extraction.APIKey, a.Config.Extraction.RequestTimeout)
		strategies = append(strategies,
			extract.NewTextModelStrategy(extract.TextModelOptions{
				Client:    client,
				Model:     a.Config.Extraction.TextModel,
				MaxTokens: a.Config.Extraction.MaxTokens,
				Logger:    a.Logger,
			}),
			extract.NewVisionModelStrategy(extract.VisionModelOptions{
				Client:    client,
				Model:     a.Config.Extraction.VisionModel,
				MaxTokens: a.Config.Extraction.MaxTokens,
				Logger:    a.Logger,
			}),
		)
	} else {
		a.Logger.Warn().Msg("extraction.api_key not configured; model-based extraction disabled")
	}

	fusion := extract.NewFusion(extract.Options{
		Strategies:         strategies,
		MinPriceConfidence: a.Config.Extraction.MinPriceConfidence,
		Logger:             a.Logger,
	})

	detector := detect.NewDetector(detect.Options{
		Thresholds: detect.Thresholds{
			PriceConfidence:       a.Config.Monitor.PriceThreshold,
			StockConfidence:       a.Config.Monitor.StockThreshold,
			LargeChangePct:        a.Config.Monitor.LargeChangePct,
			LargeChangeConfidence: a.Config.Monitor.LargeChangeConfidence,
		},
		Logger: a.Logger,
	})

	resolver := monitor.NewChannelResolver(store, notify.Options{
		Timeout:         a.Config.Notify.Timeout,
		TelegramAPIBase: a.Config.Notify.TelegramAPIBase,
		Logger:          a.Logger,
	})

	checker := monitor.NewChecker(monitor.Options{
		Items:        store,
		Observations: store,
		Fetcher:      monitor.NewBrowserFetcher(manager, loader),
		Extractor:    fusion,
		Classifier:   detector,
		Notifiers:    resolver,
		Config:       a.Config.Monitor,
		Logger:       a.Logger,
	})

	return &pipeline{manager: manager, checker: checker}
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := a.buildPipeline(store)
	defer pipe.manager.Shutdown()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToTick:  a.Config.Scheduler.AlignToTick,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")
	err = sched.Run(ctx, func(ctx context.Context, tickAt time.Time) error {
		if !pipe.manager.HealthCheck(ctx) {
			a.Logger.Warn().Msg("browser connection unhealthy; will reconnect on next acquire")
		}
		return pipe.checker.ProcessTick(ctx, tickAt)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting observation history.
type ExportOptions struct {
	ItemID    int64
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	ItemID int64
	Limit  int
}
