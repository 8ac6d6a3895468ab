package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jainyash0614/stock-price/internal/api"
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

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("store open failed", "storage", cfg.Storage, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	hub := broadcast.NewHub(logger)
	board := leaderboard.NewService(st, hub, cfg.LeaderboardSize, logger)
	hub.OnConnect = func(ctx context.Context) []broadcast.Envelope {
		entries, err := board.Current(ctx)
		if err != nil {
			logger.Warn("leaderboard snapshot failed", "err", err)
			return nil
		}
		env, err := broadcast.NewEnvelope(leaderboard.Topic, entries)
		if err != nil {
			return nil
		}
		return []broadcast.Envelope{env}
	}

	var state api.StateSource
	switch {
	case cfg.EmbedEngine:
		cat, err := market.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			logger.Error("load catalog failed", "file", cfg.CatalogFile, "err", err)
			os.Exit(1)
		}
		pub := broadcast.Fanout{hub}
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
		if err := engine.Bootstrap(ctx); err != nil {
			logger.Error("engine bootstrap failed", "err", err)
			os.Exit(1)
		}
		embedded := leaderboard.NewService(st, pub, cfg.LeaderboardSize, logger)
		sched := market.NewScheduler(ctx, logger)
		sched.Every("market-tick", cfg.TickEvery, engine.RunTick)
		sched.Every("leaderboard", cfg.LeaderboardEvery, embedded.RunRefresh)
		sched.Start()
		defer sched.Stop()
		state = engine
		logger.Info("embedded market engine started", "tick_every", cfg.TickEvery.String())
	case cfg.RedisAddr != "":
		rdb := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		relay := broadcast.NewRedisRelay(rdb, cfg.RedisChannel, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("redis relay stopped", "err", err)
			}
		}()
	default:
		logger.Warn("no REDIS_ADDR and engine not embedded, socket clients only get snapshots")
	}

	server := api.New(st, hub, state, cfg.LeaderboardSize, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("market api listening", "addr", cfg.Addr, "storage", cfg.Storage, "embedded_engine", cfg.EmbedEngine)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
