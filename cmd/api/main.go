package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"HealthAI/internal/config"
	"HealthAI/internal/database"
	"HealthAI/internal/geminiservice"
	"HealthAI/internal/healthlog"
	"HealthAI/internal/i18n"
	"HealthAI/internal/server"
	"HealthAI/internal/settings"
	"HealthAI/internal/symptom"
	"HealthAI/internal/utility"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func gracefulShutdown(ctx context.Context, stop context.CancelFunc, apiServer *http.Server) error {
	// Wait for the interrupt signal, or for the server goroutine to fail.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exiting")
	return nil
}

func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(cfg.Format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// openStore picks the health log backend named by store.driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (healthlog.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("Using the in-memory health log store, logs will not survive a restart")
		return healthlog.NewMemoryStore(), nil
	case "postgres":
		db, err := database.NewService(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		store, err := database.NewHealthLogStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := healthlog.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite health log store")
		return store, nil
	}
}

// cleanupLimiter drops idle per-IP buckets until ctx is done.
func cleanupLimiter(ctx context.Context, limiter *utility.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup()
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogger(cfg.Logging)

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, err := i18n.New(cfg.I18n.DefaultLanguage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load locales")
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open health log store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close health log store")
		}
	}()

	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("gemini.api_key not set, model calls will fail")
	}
	client := geminiservice.NewClient(cfg.Gemini, &log.Logger)
	gateway := geminiservice.NewGateway(client, &log.Logger,
		geminiservice.WithTimeout(cfg.Gemini.Timeout),
		geminiservice.WithSummaryFallback(func(lang string) string {
			return tr.T(lang, "calendar.fallbackSummary", nil)
		}),
	)

	hub := utility.NewHub()
	logs := healthlog.NewService(store, gateway, &log.Logger)
	flows := symptom.NewService(gateway, logs, tr, &log.Logger, cfg.Flows.MaxItems, cfg.Flows.TTL, symptom.WithNotifier(hub))
	limiter := utility.NewIPRateLimiter(cfg.Server.AIRequestsPerMinute, cfg.Server.AIBurst)

	apiServer := server.NewServer(cfg, server.Deps{
		Store:      store,
		Gateway:    gateway,
		Breaker:    client,
		Logs:       logs,
		Flows:      flows,
		Hub:        hub,
		Settings:   settings.NewManager(cfg.Session, tr, tr.Fallback()),
		Translator: tr,
		Limiter:    limiter,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", apiServer.Addr).Str("environment", cfg.Environment).Msg("Server starting")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return gracefulShutdown(gctx, stop, apiServer)
	})
	g.Go(func() error {
		cleanupLimiter(gctx, limiter)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Graceful shutdown complete.")
}
