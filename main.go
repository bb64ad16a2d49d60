package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/havenai/haven/pkg/config"
	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/service"
	"github.com/havenai/haven/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.SQLitePath())
	if err != nil {
		logger.Error("Failed to open database", "path", cfg.SQLitePath(), "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(
		&db.Session{}, &db.Turn{}, &db.ConsentRecord{}, &db.SessionSummary{},
	); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session snapshots live in redis; the service still runs without
	// it, losing only restart continuity.
	var stateStore service.StateStore
	redisStore := service.NewRedisStateStore(cfg.RedisAddr(), cfg.RedisDB())
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisStore.Ping(pingCtx); err != nil {
		logger.Warn("Redis unreachable, session snapshots disabled", "addr", cfg.RedisAddr(), "error", err)
	} else {
		stateStore = redisStore
	}
	pingCancel()

	modelSvc := service.NewModelService()
	pipes, err := service.BuildPipelines(ctx, cfg, modelSvc)
	if err != nil {
		logger.Error("Failed to build pipelines", "error", err)
		os.Exit(1)
	}

	consentSvc := service.NewConsentService(database)
	memorySvc := service.NewMemoryService(stateStore, cfg.WindowSize(), cfg.SessionTTL(), cfg.AttachmentTTL())
	summarySvc := service.NewSummaryService(database, consentSvc, pipes.Summarize)
	sessionSvc := service.NewSessionService(database, memorySvc, summarySvc)
	orchestrator := service.NewOrchestrator(database, consentSvc, memorySvc, pipes)

	// Periodic cleanup: evict idle in-memory sessions and close their
	// durable rows.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CleanupSchedule(), func() {
		now := time.Now()
		removed := memorySvc.Cleanup(now)
		closed, err := sessionSvc.CloseIdle(now.Add(-cfg.SessionTTL()))
		if err != nil {
			logger.Warn("Idle session close failed", "error", err)
		}
		logger.Info("cleanup pass finished", "evicted", removed, "closed", closed)
	}); err != nil {
		logger.Error("Failed to schedule cleanup", "schedule", cfg.CleanupSchedule(), "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := NewServer(Services{
		Orchestrator: orchestrator,
		Consent:      consentSvc,
		Sessions:     sessionSvc,
		Summaries:    summarySvc,
	})
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	cancel()
	time.Sleep(time.Second)
}
