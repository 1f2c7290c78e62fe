package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jensmonne/RSS-webhook/internal/config"
	"github.com/jensmonne/RSS-webhook/internal/metrics"
	"github.com/jensmonne/RSS-webhook/internal/observability/otelx"
	"github.com/jensmonne/RSS-webhook/internal/runner"
)

func main() {
	// A local .env complements the real environment; values already set win.
	_ = godotenv.Load()

	env := config.LoadEnv()
	configPath := flag.String("config", env.ConfigPath, "path to the feeds document")
	runOnce := flag.Bool("run-once", env.RunOnce, "poll every feed once, then exit")
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	env.Apply(doc)

	logger := newLogger(doc.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to initialize otel: %v", err)
	}
	if shutdownOTel != nil {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				logger.Warn("otel shutdown", "error", err)
			}
		}()
	}

	r, err := runner.New(doc, runner.Options{Logger: logger, ShutdownGrace: env.ShutdownGrace})
	if err != nil {
		log.Fatalf("failed to build runner: %v", err)
	}

	if *runOnce {
		for _, status := range r.RunOnce(ctx) {
			logger.Info("feed polled",
				"feed", status.Feed,
				"fetched", status.Fetched,
				"new", status.New,
				"delivered", status.Delivered,
				"abandoned", status.Abandoned,
				"error", status.Err,
			)
		}
		return
	}

	if doc.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, doc.Metrics.Listen, logger); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	if err := r.Start(ctx); err != nil {
		log.Fatalf("failed to start runner: %v", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := r.Stop(); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
