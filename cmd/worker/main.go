package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/craftisan/marketplace/internal/config"
	"github.com/craftisan/marketplace/internal/earnings"
	"github.com/craftisan/marketplace/internal/messaging"
	"github.com/craftisan/marketplace/internal/telemetry"
)

const serviceName = "marketplace-earnings-worker"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, "1.0.0")
	if err != nil {
		logger.Error("failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderPlaced, "earnings-worker")
	defer func() { _ = consumer.Close() }()

	worker := earnings.NewWorker(earnings.NewRepository(db), logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting earnings worker", "brokers", cfg.KafkaBrokers)

	if err := consumer.Run(runCtx, worker.Handle); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
