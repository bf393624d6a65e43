package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"stockadvisor/internal/api"
	"stockadvisor/internal/config"
	"stockadvisor/internal/logging"
	"stockadvisor/pkg/advisor"
)

func main() {
	var configPath string
	var dataDir string
	var port int
	var host string

	flag.StringVar(&configPath, "config", "", "Path to config.json (optional)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for state store and logs")
	flag.IntVar(&port, "port", 0, "Port to run the server on (overrides config)")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, writer, err := logging.NewLogger(cfg.LogDir(), parseLogLevel(cfg.Server.LogLevel))
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	core, err := advisor.NewCore(advisor.CoreConfig{
		StatePath:          cfg.StatePath(),
		AnalyzeWindow:      cfg.Limits.AnalyzeWindow(),
		AnalyzeMaxRequests: cfg.Limits.AnalyzeMaxRequests,
		ProviderWindow:     cfg.Limits.ProviderWindow(),
		ProviderMax:        cfg.Limits.ProviderMaxRequests,
		Breaker: advisor.CircuitBreakerConfig{
			FailureThreshold: cfg.Limits.FailureThreshold,
			RecoveryTimeout:  cfg.Limits.RecoveryTimeout(),
		},
		Retry: advisor.RetryConfig{
			MaxRetries: cfg.Limits.MaxRetries,
			BaseDelay:  cfg.Limits.BaseDelay(),
			MaxDelay:   cfg.Limits.MaxDelay(),
			Multiplier: 2.0,
		},
		Cost: advisor.CostLedgerConfig{
			MaxDailyCost:   decimal.NewFromFloat(cfg.Cost.MaxDailyCost),
			MaxMonthlyCost: decimal.NewFromFloat(cfg.Cost.MaxMonthlyCost),
		},
		Generation: advisor.GenerationConfig{
			Provider:    cfg.Generation.Provider,
			APIKey:      cfg.Generation.APIKey,
			Model:       cfg.Generation.Model,
			BaseURL:     cfg.Generation.BaseURL,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
		},
		PrimaryProvider:  cfg.Providers.Primary,
		FallbackProvider: cfg.Providers.Fallback,
		CallTimeout:      cfg.Limits.CallTimeout(),
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to initialize core", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	handler := middleware.Compress(5)(api.NewRouter(core, logger))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting",
		"addr", addr,
		"primary_provider", cfg.Providers.Primary,
		"fallback_provider", cfg.Providers.Fallback,
		"generation", cfg.Generation.Provider)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
