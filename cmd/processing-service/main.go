package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/healthbridge/platform/pkg/app"
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/database"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/common/middleware"
	"github.com/healthbridge/platform/pkg/documents"
	"github.com/healthbridge/platform/pkg/observability/metrics"
)

func main() {
	logger.Init()
	cfg := config.Load()

	application, err := app.New(cfg, cfg.AsyncProcessing)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer application.Close()

	if err := application.Migrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate processing tables")
	}

	handler := documents.NewHTTPHandler(application.Documents, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		db, err := database.GetPostgres()
		if err == nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				err = sqlDB.PingContext(r.Context())
			} else {
				err = dbErr
			}
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.ServerPort,
			"async": cfg.AsyncProcessing,
		}).Info("Processing Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go reportBreakers(ctx, application)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Processing Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Processing Service stopped")
}

// reportBreakers logs providers whose circuit is not closed.
func reportBreakers(ctx context.Context, application *app.App) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, s := range application.Pipeline.AvailableServices() {
				if s.BreakerState != "" && s.BreakerState != "closed" {
					logger.Log.WithFields(map[string]interface{}{
						"provider": s.Name,
						"state":    s.BreakerState,
					}).Warn("provider circuit not closed")
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
