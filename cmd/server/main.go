package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/natetr/CrankScribe/internal/config"
	"github.com/natetr/CrankScribe/internal/metrics"
	"github.com/natetr/CrankScribe/internal/server"
	"github.com/natetr/CrankScribe/internal/session"
	"github.com/natetr/CrankScribe/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "crankscribe-server"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("wire_sample_rate", cfg.Session.WireSampleRate),
		slog.Int("target_sample_rate", cfg.Session.TargetSampleRate),
		slog.Int("session_max_age_minutes", cfg.Session.MaxAgeMinutes),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	transcriber, err := transcription.NewClient(transcription.Config{
		APIKey:          cfg.Transcription.APIKey,
		TranscribeModel: cfg.Transcription.TranscribeModel,
		ProcessModel:    cfg.Transcription.ProcessModel,
		Language:        cfg.Transcription.Language,
		MaxTokens:       cfg.Transcription.MaxTokens,
		MaxConcurrent:   cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized")

	store := session.NewStore(logger, transcriber, appMetrics, session.Config{
		WireRate:   cfg.Session.WireSampleRate,
		TargetRate: cfg.Session.TargetSampleRate,
		MaxAge:     cfg.Session.GetMaxAgeDuration(),
	})
	logger.Info("Session store initialized",
		slog.Duration("max_age", cfg.Session.GetMaxAgeDuration()),
	)

	httpServer := server.NewHTTPServer(server.Config{
		Port:         cfg.HTTP.Port,
		Address:      cfg.HTTP.Address,
		MaxChunkSize: cfg.HTTP.MaxChunkSize,
	}, logger, store, transcriber, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	store.Stop()

	stats := store.GetStats()
	transcriptionStats := transcriber.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("chunks_received", stats.ReceivedChunks),
		slog.Uint64("sessions_finalized", stats.FinalizedSessions),
		slog.Uint64("sessions_expired", stats.ExpiredSessions),
		slog.Uint64("transcription_requests", transcriptionStats.TotalRequests),
		slog.Float64("transcription_success_rate", transcriptionStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
