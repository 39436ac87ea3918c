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

	"github.com/brianhuynh125/MedScribeAI/internal/audio"
	"github.com/brianhuynh125/MedScribeAI/internal/config"
	"github.com/brianhuynh125/MedScribeAI/internal/generate"
	"github.com/brianhuynh125/MedScribeAI/internal/metrics"
	"github.com/brianhuynh125/MedScribeAI/internal/pipeline"
	"github.com/brianhuynh125/MedScribeAI/internal/server"
	"github.com/brianhuynh125/MedScribeAI/internal/session"
	"github.com/brianhuynh125/MedScribeAI/internal/transcribe"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "scribe-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("transcription_device", cfg.Transcription.Device),
		slog.String("generation_endpoint", cfg.Generation.Endpoint),
		slog.String("generation_model", cfg.Generation.DefaultModel),
		slog.String("sessions_dir", cfg.Storage.SessionsDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the session store
	store, err := session.NewStore(cfg.Storage.SessionsDir, logger)
	if err != nil {
		logger.Error("Failed to create session store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the audio normalizer and transcription engine
	normalizer := audio.NewNormalizer(cfg.Audio.FFmpegPath, cfg.Audio.SampleRate, logger)
	engine := transcribe.NewEngine(cfg.Transcription, normalizer, logger)

	// Initialize the generation client
	generator := generate.NewClient(generate.Config{
		Endpoint:    cfg.Generation.Endpoint,
		Model:       cfg.Generation.DefaultModel,
		Temperature: cfg.Generation.Temperature,
		Timeout:     cfg.Generation.GetTimeoutDuration(),
	}, logger)

	// Assemble the pipeline
	orchestrator := pipeline.New(cfg, normalizer, engine, generator, store, appMetrics, logger)
	logger.Info("Pipeline orchestrator initialized")

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, orchestrator, store, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

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
