// Package main runs the tariff-agent local service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/apiclient"
	"github.com/ispcompare/tariff-agent/internal/clock/system"
	"github.com/ispcompare/tariff-agent/internal/config"
	"github.com/ispcompare/tariff-agent/internal/credentials"
	"github.com/ispcompare/tariff-agent/internal/id/uuid"
	"github.com/ispcompare/tariff-agent/internal/kvstore/memory"
	"github.com/ispcompare/tariff-agent/internal/kvstore/sqlite"
	"github.com/ispcompare/tariff-agent/internal/logging"
	"github.com/ispcompare/tariff-agent/internal/server"
	"github.com/ispcompare/tariff-agent/internal/services"
	"github.com/ispcompare/tariff-agent/internal/tracking"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openStore(cfg)
	if err != nil {
		logger.Fatal("open store failed", zap.Error(err))
	}
	defer closeKV()

	holder := credentials.New(kv)
	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Logger:  logger.Named("apiclient"),
		OnAuthExpired: func() {
			logger.Warn("stored credential could not be refreshed, login required")
		},
	}, holder)
	if err != nil {
		logger.Fatal("api client init failed", zap.Error(err))
	}
	svcs := &server.Services{
		Auth:          services.NewAuth(client, holder),
		Users:         services.NewUsers(client),
		Providers:     services.NewProviders(client),
		Tariffs:       services.NewTariffs(client),
		Reviews:       services.NewReviews(client),
		SearchHistory: services.NewSearchHistory(client),
	}

	collector := tracking.NewHTTPCollector(cfg.Collector.URL, cfg.CollectorTimeout())
	tracker := tracking.New(tracking.Config{
		Store:     kv,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Collector: collector,
		Logger:    logger.Named("tracking"),
		MaxAge:    cfg.SessionMaxAge(),
	})
	if err := tracker.Initialize(ctx); err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}

	apiServer := server.New(tracker, svcs, logger.Named("server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func openStore(cfg config.Config) (agent.KVStore, func(), error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				zap.L().Error("close sqlite store failed", zap.Error(err))
			}
		}, nil
	case "memory":
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
