// Package main is the entry point for the autodelete service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/config"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/httpmw"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
	"github.com/zebraclach/twitter-autodelete-bot/internal/events/bus"
	"github.com/zebraclach/twitter-autodelete-bot/internal/platform"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/controller"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/handlers"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/policy"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/scheduler"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/store"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting autodelete service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus: NATS when configured, otherwise in-process
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory event bus")
	}
	defer eventBus.Close()

	// 4. Schedule store
	st, err := store.New(cfg.Store, log)
	if err != nil {
		log.Fatal("Failed to open schedule store", zap.Error(err))
	}
	defer st.Close()
	log.Info("Schedule store ready",
		zap.String("driver", cfg.Store.Driver),
		zap.String("path", cfg.Store.Path))

	// 5. Platform gateway
	gateway := platform.NewTwitterClient(cfg.Twitter, log)

	// 6. Retention scheduler
	thresholds := policy.FromConfig(cfg.Retention)
	sched := scheduler.New(gateway, st, thresholds, eventBus, log, scheduler.Config{
		SweepInterval: cfg.Retention.SweepInterval(),
		TimelineLimit: cfg.Twitter.TimelineLimit,
	})
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start retention scheduler", zap.Error(err))
	}
	log.Info("Retention scheduler started",
		zap.Duration("window", thresholds.Window),
		zap.Int("tracked", sched.TrackedCount()))

	// 7. HTTP server
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.RequestLogger(log, "autodelete"))
	router.Use(httpmw.Recovery(log))

	ctrl := controller.NewController(gateway, sched, thresholds)
	handlers.RegisterRoutes(router, ctrl, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 8. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down autodelete service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := sched.Stop(); err != nil && err != scheduler.ErrNotRunning {
		log.Error("Scheduler stop error", zap.Error(err))
	}

	log.Info("Autodelete service stopped")
}
