package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/api"
	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/monitoring"
	"github.com/deviantnotify/deviant-notify/internal/notifications"
	"github.com/deviantnotify/deviant-notify/internal/options"
	"github.com/deviantnotify/deviant-notify/internal/readstate"
	"github.com/deviantnotify/deviant-notify/internal/scheduler"
	"github.com/deviantnotify/deviant-notify/internal/storage"
	"github.com/deviantnotify/deviant-notify/internal/upstream"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Infof("Starting Deviant Notify %s", config.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(cfg.StatePath)
	if err != nil {
		logrus.Fatalf("Failed to open state database: %v", err)
	}
	defer db.Close()

	backends := api.Backends{
		Local: db.Namespace("local"),
		Sync:  db.Namespace("sync"),
	}
	if cfg.StorageAccount != "" {
		azureStorage, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize Azure storage: %v", err)
		}
		backends.Sync = azureStorage
	}

	optionsManager := options.NewManager(backends.Local, cfg.AllowedDomains)
	if errs, err := optionsManager.Init(ctx, cfg.OptionsFile); err != nil {
		logrus.Fatalf("Failed to initialize options: %v", err)
	} else if errs.Count() > 0 {
		logrus.Warnf("Options had %d invalid values: %v", errs.Count(), errs.All())
	}
	opts := optionsManager.Get()

	readState := readstate.NewStore(backends.For(opts.UseSyncStorage))
	if err := readState.Load(ctx); err != nil {
		logrus.Fatalf("Failed to load read state: %v", err)
	}

	client, err := upstream.NewClient("https://"+opts.PreferredDomain, cfg.CookieFile, cfg.RequestsPerSecond)
	if err != nil {
		logrus.Fatalf("Failed to initialize upstream client: %v", err)
	}

	sink, err := notifications.NewSink(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize notifications: %v", err)
	}
	presenter := notifications.NewPresenter(sink, optionsManager, cfg.NotifMaxNew, cfg.NotesMaxNew)

	metrics := monitoring.NewMetrics()
	monitoringService := monitoring.NewService(cfg, client, optionsManager, readState, presenter, metrics)

	hub := api.NewHub(metrics)
	go hub.Run(ctx)
	monitoringService.SetBroadcaster(hub)

	schedulerService := scheduler.NewService(monitoringService, optionsManager)

	controller := api.NewController(cfg, optionsManager, readState, monitoringService, presenter, schedulerService, backends)
	optionsManager.OnChange(controller.OnOptionChange)

	if err := schedulerService.WatchCookies(client.CookieFile(), client); err != nil {
		logrus.Warnf("Cookie file changes will not be picked up: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	apiServer := api.NewServer(controller, monitoringService, hub, metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
