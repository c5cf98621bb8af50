package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/internal/handlers"
	"github.com/ai-pro-cosmic-go/internal/i18n"
	"github.com/ai-pro-cosmic-go/internal/middleware"
	"github.com/ai-pro-cosmic-go/internal/services/assistant"
	"github.com/ai-pro-cosmic-go/internal/services/cache"
	"github.com/ai-pro-cosmic-go/internal/services/chat"
	"github.com/ai-pro-cosmic-go/internal/services/cosmic"
	"github.com/ai-pro-cosmic-go/internal/services/pages"
	"github.com/ai-pro-cosmic-go/internal/services/repository"
	"github.com/ai-pro-cosmic-go/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Cosmic.Backend,
		"bucket":  cfg.Cosmic.BucketSlug,
	}).Info("Starting AI Pro server...")

	store, err := cosmic.NewStore(&cfg.Cosmic, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize content store")
	}

	cacheService, err := cache.NewCache(&cfg.Cache, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize cache")
	}
	if closer, ok := cacheService.(io.Closer); ok {
		defer closer.Close()
	}

	responder, err := assistant.New(&cfg.Assistant, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize assistant")
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	defer rateLimiter.Stop()

	metrics := middleware.NewMetrics()
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	repo := repository.New(store, log, metrics)
	pageLoader := pages.NewLoader(repo, cacheService, metrics, log)
	// A shared redis cache may still hold pages from the previous run.
	if err := pageLoader.Purge(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to purge page cache at startup")
	}

	api := handlers.NewAPIHandler(
		repo,
		pageLoader,
		chat.NewService(repo, responder, metrics, log),
		rateLimiter,
		localizer,
		metrics,
		log,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	// SIGHUP purges cached pages so content edits show up before the TTL ends.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			break
		}
		if err := pageLoader.Purge(context.Background()); err != nil {
			log.WithError(err).Error("Failed to purge page cache")
		}
	}
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}

	log.Info("Server stopped")
}
