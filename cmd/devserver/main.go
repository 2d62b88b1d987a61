package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-productivity-app/assistant/ai"
	"ai-productivity-app/assistant/conversation/api"
	"ai-productivity-app/assistant/conversation/repository"
	"ai-productivity-app/assistant/conversation/service"
	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/jwt"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/shared/observability"

	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "assistant-devserver"

func main() {
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	if cfg.Server.Env == "production" && os.Getenv("JWT_SECRET") == "" {
		log.Error("JWT_SECRET must be set outside development")
		os.Exit(1)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := observability.SetupTracing(serviceName, nil)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer flush(log, "tracing", shutdown)
	}
	shutdownMetrics, err := observability.SetupPrometheusMetrics(serviceName, prometheus.DefaultRegisterer)
	if err != nil {
		log.LogError(err, "Failed to initialize metrics")
		os.Exit(1)
	}
	defer flush(log, "metrics", shutdownMetrics)

	store, err := openStore(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize store")
		os.Exit(1)
	}
	defer store.Close()

	r, err := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Store:     store,
		Responder: newResponder(cfg, log),
		JWT:       jwt.NewService(cfg.Server.JWTSecret, cfg.Server.JWTExpiry),
		Log:       log,
	})
	if err != nil {
		log.LogError(err, "Failed to initialize server")
		os.Exit(1)
	}
	defer r.Close()

	r.Health.Start()
	defer r.Health.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}

// openStore uses Postgres when DATABASE_DSN is set and keeps everything in memory otherwise
func openStore(cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	if cfg.Server.DatabaseDSN == "" {
		log.Warn("DATABASE_DSN not set, conversations are kept in memory")
		return repository.NewMemoryStore(), nil
	}
	db, err := config.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db)
}

func newResponder(cfg *config.Config, log *logger.Logger) service.Responder {
	if cfg.Server.ResponderURL == "" {
		log.Warn("AI_SERVICE_URL not set, replies echo the prompt")
		return ai.Echo{}
	}
	return ai.NewLayer2Responder(cfg.Server.ResponderURL, os.Getenv("AI_SERVICE_API_KEY"), cfg.API.SendTimeout, log.WithComponent("layer2"))
}

func flush(log *logger.Logger, name string, shutdown observability.Shutdown) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.LogError(err, "Failed to flush "+name)
	}
}
