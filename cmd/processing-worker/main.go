package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthbridge/platform/pkg/app"
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/kafka"
	"github.com/healthbridge/platform/pkg/common/logger"
)

const cleanupInterval = 12 * time.Hour

func main() {
	logger.Init()
	cfg := config.Load()

	application, err := app.New(cfg, true)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer application.Close()

	if err := application.Migrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate processing tables")
	}

	consumer := kafka.NewConsumer(cfg, cfg.KafkaJobsTopic, "")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic": cfg.KafkaJobsTopic,
			"group": cfg.KafkaGroupID,
		}).Info("Processing Worker started")

		if err := consumer.Consume(ctx, application.Documents.HandleJob); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	if cfg.DocumentRetention > 0 {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := application.Documents.Cleanup(ctx); err != nil {
						logger.Log.WithError(err).Warn("cleanup job failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Processing Worker...")
	cancel()
	logger.Log.Info("Processing Worker stopped")
}
