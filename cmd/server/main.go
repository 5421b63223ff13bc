package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/action"
	"github.com/quillon/ruleflow/internal/action/handlers"
	"github.com/quillon/ruleflow/internal/api"
	"github.com/quillon/ruleflow/internal/config"
	"github.com/quillon/ruleflow/internal/dispatch"
	"github.com/quillon/ruleflow/internal/engine"
	"github.com/quillon/ruleflow/internal/logger"
	"github.com/quillon/ruleflow/internal/record"
	"github.com/quillon/ruleflow/internal/schedule"
	"github.com/quillon/ruleflow/internal/store"
)

func main() {
	cfgPath := flag.String("config", "configs/ruleflow.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Output); err != nil {
		os.Stderr.WriteString("logger init: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	// ── Stores ────────────────────────────────────────────────────────────────
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("database open failed", zap.Error(err))
		os.Exit(1)
	}
	ruleStore := store.NewGormRuleStore(db)
	logStore := store.NewGormLogStore(db)

	// ── Record store collaborator ─────────────────────────────────────────────
	// The standalone server runs against the in-memory record store; embedded
	// deployments wire their own record.Store and schema.
	records := record.NewMemStore()
	schema := record.NewSchema()

	// ── Action registry ───────────────────────────────────────────────────────
	registry := action.NewRegistry()
	handlers.RegisterBuiltins(registry)
	logger.Info("action registry ready", zap.Strings("types", registry.Types()))

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(ctx, cfg.Engine, engine.Options{
		Rules:    ruleStore,
		Logs:     logStore,
		Registry: registry,
		Records:  records,
		Schema:   schema,
	})
	if n, err := eng.Recover(ctx); err != nil {
		logger.Warn("pending job recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("pending jobs re-enqueued", zap.Int("count", n))
	}

	// ── Trigger sources ───────────────────────────────────────────────────────
	dispatcher := dispatch.New(ruleStore, logStore, eng)
	records.Subscribe(func(mut record.Mutation) {
		dispatcher.OnMutation(ctx, mut)
	})

	if cfg.Scheduler.Enabled {
		sched := schedule.NewScheduler(ruleStore, logStore, eng)
		go sched.Run(ctx, time.Duration(cfg.Scheduler.IntervalSeconds)*time.Second)
		logger.Info("scheduler started", zap.Int("interval_seconds", cfg.Scheduler.IntervalSeconds))
	}

	// ── Declarative rules file ────────────────────────────────────────────────
	if cfg.RulesFile != "" {
		syncRules := func() {
			rf, err := config.LoadRuleFile(cfg.RulesFile)
			if err != nil {
				logger.Warn("rules file not loaded", zap.Error(err))
				return
			}
			if err := config.SyncRules(ctx, rf, ruleStore); err != nil {
				logger.Warn("rules file partially synced", zap.Error(err))
				return
			}
			logger.Info("rules file synced", zap.Int("rules", len(rf.Rules)))
		}
		syncRules()
		stopWatch, err := config.WatchFile(cfg.RulesFile, syncRules)
		if err != nil {
			logger.Warn("rules file watcher unavailable (hot-sync disabled)", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(ruleStore, logStore, dispatcher, eng),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel()
	eng.Shutdown()
	logger.Info("goodbye")
}
