package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jainyash0614/stock-price/internal/broadcast"
	"github.com/jainyash0614/stock-price/internal/config"
	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/logging"
	"github.com/jainyash0614/stock-price/internal/market"
	"github.com/jainyash0614/stock-price/internal/notify"
	"github.com/jainyash0614/stock-price/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	cat, err := market.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("load catalog failed", "file", cfg.CatalogFile, "err", err)
		os.Exit(1)
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("store open failed", "storage", cfg.Storage, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.WorkerReset {
		if err := st.ResetMarket(ctx, cat.ResetList); err != nil {
			logger.Error("market reset failed", "err", err)
			os.Exit(1)
		}
		logger.Info("market reset completed", "instruments", len(cat.ResetList))
		return
	}

	var pub broadcast.Fanout
	if cfg.RedisAddr != "" {
		rdb := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		pub = append(pub, broadcast.NewRedisPublisher(rdb, cfg.RedisChannel))
	} else {
		logger.Warn("REDIS_ADDR not set, broadcasts only reach notifiers")
	}
	notifier, err := notify.FromConfig(cfg)
	if err != nil {
		logger.Error("notifier init failed", "err", err)
		os.Exit(1)
	}
	if notifier != nil {
		bridge := notify.NewBridge(notifier, logger)
		defer bridge.Wait()
		pub = append(pub, bridge)
	}

	engine := market.NewEngine(st, pub, cat, market.Config{
		Cooldown:       cfg.EventCooldown,
		RecentWindow:   cfg.EventHistory,
		PersistWorkers: cfg.PersistWorkers,
		SeedOnEmpty:    cfg.StartupSeedStocks,
	}, logger)
	board := leaderboard.NewService(st, pub, cfg.LeaderboardSize, logger)

	if err := engine.Bootstrap(ctx); err != nil {
		logger.Error("engine bootstrap failed", "err", err)
		os.Exit(1)
	}

	if cfg.WorkerRunOnce {
		report, err := engine.Tick(ctx)
		if err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		if _, err := board.Refresh(ctx); err != nil {
			logger.Error("leaderboard refresh failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "tick_id", report.ID, "updated", report.Updated, "event", string(report.Event))
		return
	}

	sched := market.NewScheduler(ctx, logger)
	sched.Every("market-tick", cfg.TickEvery, engine.RunTick)
	sched.Every("leaderboard", cfg.LeaderboardEvery, board.RunRefresh)
	sched.Start()

	logger.Info("worker started",
		"tick_every", cfg.TickEvery.String(),
		"event_cooldown", cfg.EventCooldown.String(),
		"leaderboard_every", cfg.LeaderboardEvery.String(),
		"instruments", len(engine.Instruments()),
	)
	<-ctx.Done()
	sched.Stop()
	logger.Info("worker shutdown")
}
