package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pavel-fokin/media-library/internal/kafka"
	"github.com/pavel-fokin/media-library/internal/library"
)

func main() {
	_ = godotenv.Load()

	cfg := library.Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("MEDIA_LIBRARY_KAFKA_BROKERS is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib, err := library.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize media library: %v", err)
	}
	defer lib.Close()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger)
	defer consumer.Close()

	logger.Info("Starting worker", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
	if err := consumer.Run(ctx, lib.PerformQueued); err != nil {
		logger.Error("Worker stopped", "error", err)
	}
}
