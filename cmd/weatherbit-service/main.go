package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/weatherbit-service/internal/api/http"
	"github.com/i474232898/weatherbit-service/internal/config"
	"github.com/i474232898/weatherbit-service/internal/integration"
	"github.com/i474232898/weatherbit-service/internal/logging"
	"github.com/i474232898/weatherbit-service/internal/metrics"
	"github.com/i474232898/weatherbit-service/internal/scheduler"
	"github.com/i474232898/weatherbit-service/internal/store"
	"github.com/i474232898/weatherbit-service/internal/weather"
	"github.com/i474232898/weatherbit-service/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.DotEnvLoaded {
		log.Info().Msg("no .env file found, using environment only")
	}

	rec := metrics.New(cfg.MetricsEnabled)

	// Shared HTTP client and response cache for every entry.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	cache := providers.NewResponseCache(cfg.CacheSizeMB)

	newClient := func(params weather.ConnectionParams) weather.Client {
		return providers.NewWeatherbitClient(httpClient, params,
			providers.WithBaseURL(cfg.BaseURL),
			providers.WithForecastDays(cfg.ForecastDays),
			providers.WithCache(cache),
			providers.WithFetchObserver(rec),
			providers.WithLogger(log),
		)
	}

	sched := scheduler.New(log)
	mgr := integration.NewManager(
		store.NewRegistry[*integration.Runtime](),
		sched,
		newClient,
		integration.WithLogger(log),
		integration.WithObserver(rec),
		integration.WithCallTimeout(cfg.HTTPTimeout),
		integration.WithSetupLimit(cfg.SetupConcurrency),
	)

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := mgr.SetupAll(setupCtx, cfg.Entries); err != nil {
		log.Error().Err(err).Msg("some locations failed to load")
	}
	cancelSetup()

	sched.Start()

	app := httpapi.NewApp(mgr, rec, log.GetLevel() <= zerolog.DebugLevel)

	go func() {
		log.Info().Str("port", cfg.Port).Int("locations", len(cfg.Entries)).Msg("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sched.Stop()
	mgr.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
