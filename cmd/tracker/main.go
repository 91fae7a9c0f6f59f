// Package main runs the playback activity tracker: reconciliation engine,
// history writer, notification pipeline, and the operational HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/playsignal/tracker/config"
	"github.com/playsignal/tracker/internal/api"
	"github.com/playsignal/tracker/internal/auth"
	"github.com/playsignal/tracker/internal/events"
	"github.com/playsignal/tracker/internal/history"
	"github.com/playsignal/tracker/internal/mediaserver"
	"github.com/playsignal/tracker/internal/middleware"
	"github.com/playsignal/tracker/internal/notify"
	"github.com/playsignal/tracker/internal/tracker"
	"github.com/playsignal/tracker/pkg/database"
	"github.com/playsignal/tracker/pkg/queue"
	"github.com/playsignal/tracker/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Snapshot source
	msClient := mediaserver.NewClient(
		cfg.MediaServer.URL,
		cfg.MediaServer.Token,
		time.Duration(cfg.MediaServer.RequestTimeout)*time.Second,
		logger,
	)

	// Reconciliation engine
	rec := tracker.NewReconciler(tracker.Config{
		GraceMissedPolls: cfg.Tracker.GraceMissedPolls,
		WatchedPercent:   cfg.Tracker.WatchedPercent,
		BufferDebounce:   time.Duration(cfg.Tracker.BufferDebounceSec) * time.Second,
	}, logger)
	publisher := events.NewPublisher(rdb.Client, logger)
	engine := tracker.NewEngine(msClient, rec, publisher, tracker.EngineConfig{
		PollInterval:  time.Duration(cfg.Tracker.PollIntervalSec) * time.Second,
		FetchTimeout:  time.Duration(cfg.MediaServer.RequestTimeout) * time.Second,
		QueueTicks:    cfg.Tracker.QueueTicks,
		EventBuffer:   cfg.Tracker.EventBuffer,
		ShutdownGrace: time.Duration(cfg.Tracker.ShutdownGraceSec) * time.Second,
	}, logger)

	// History writer
	histRepo := history.NewRepository(pool)
	writer := history.NewWriter(histRepo, history.WriterConfig{
		MinWatchedSeconds: cfg.History.MinWatchedSeconds,
		WriteTimeout:      time.Duration(cfg.History.WriteTimeoutSec) * time.Second,
		MaxAttempts:       cfg.History.MaxAttempts,
		RetryBackoff:      time.Duration(cfg.History.RetryBackoffSec) * time.Second,
	}, logger)

	// Notification pipeline
	agentConfigs, agents, err := notify.LoadAgents(cfg.Notify.AgentsFile, logger)
	if err != nil {
		logger.Warn("agents config unavailable, notifications disabled", zap.Error(err))
	}
	deduper := notify.NewRedisDeduper(rdb.Client, time.Duration(cfg.Notify.DedupWindowSec)*time.Second)
	triggerEngine := notify.NewEngine(agentConfigs, deduper, logger)
	notifyRepo := notify.NewLogRepository(pool)
	dlq := queue.NewDeadLetter(rdb.Client, logger)
	dispatcher := notify.NewDispatcher(agents, notifyRepo, dlq, notify.DispatcherConfig{
		MaxAttempts:     cfg.Notify.MaxAttempts,
		BackoffBase:     time.Duration(cfg.Notify.BackoffBaseSec) * time.Second,
		DeliveryTimeout: time.Duration(cfg.Notify.DeliveryTimeoutSec) * time.Second,
		MaxInFlight:     cfg.Notify.MaxInFlight,
	}, logger)

	// Pipeline goroutines: the engine hands event batches off and never
	// waits on the consumers.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(runCtx)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(context.Background(), engine.HistoryEvents())
	}()

	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		triggerEngine.Run(context.Background(), engine.NotifyEvents(), dispatcher)
	}()

	// Optional push subscription: updates trigger an immediate tick.
	if cfg.MediaServer.UseWebSocket {
		notifier := mediaserver.NewNotifier(cfg.MediaServer.URL, cfg.MediaServer.Token, logger)
		updates, err := notifier.Subscribe(runCtx)
		if err != nil {
			logger.Warn("websocket subscription unavailable, polling only", zap.Error(err))
		} else {
			go func() {
				for range updates {
					engine.Poke()
				}
			}()
		}
	}

	// Operational API
	jwtService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.ExpireHours)
	handler := api.NewHandler(engine, histRepo, notifyRepo, dlq, writer, dispatcher, jwtService, cfg.Auth.APIKey, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	handler.Register(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown order: stop ticking (engine flushes live sessions to terminal
	// events and closes its channels), let the consumers drain, then give
	// the dispatcher its grace period.
	grace := time.Duration(cfg.Tracker.ShutdownGraceSec) * time.Second
	runCancel()
	<-engineDone
	<-writerDone
	<-notifyDone
	dispatcher.Close(grace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("tracker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
