package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"vidsight/internal/analysis"
	"vidsight/internal/api"
	"vidsight/internal/config"
	"vidsight/internal/daemon"
	"vidsight/internal/jobs"
	"vidsight/internal/logging"
	"vidsight/internal/metrics"
	"vidsight/internal/notifications"
	"vidsight/internal/orchestrator"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return
	}

	registry, err := analysis.NewRegistry(cfg, logger)
	if err != nil {
		logger.Error("build executor registry", logging.Error(err))
		return
	}

	hub := notifications.NewHub(cfg.Notifications.SubscriberBuffer)
	recorder := metrics.NewRecorder()
	notifier := notifications.NewService(cfg)

	orch := orchestrator.NewManager(cfg, store, registry, hub, recorder, logger,
		orchestrator.WithNotifier(notifier))
	server := api.NewServer(cfg, store, orch, hub, recorder, logger)

	d, err := daemon.New(cfg, store, orch, server, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("vidsightd shutting down")
	d.Stop()
}
