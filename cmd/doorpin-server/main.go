package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doorpin/server/internal/clock"
	"github.com/doorpin/server/internal/config"
	"github.com/doorpin/server/internal/db"
	"github.com/doorpin/server/internal/doorpin/apikey"
	"github.com/doorpin/server/internal/doorpin/credential"
	"github.com/doorpin/server/internal/doorpin/input"
	"github.com/doorpin/server/internal/doorpin/keypad"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/schedule"
	"github.com/doorpin/server/internal/doorpin/service"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/store/memory"
	"github.com/doorpin/server/internal/doorpin/store/sqlite"
	"github.com/doorpin/server/internal/healthrpc"
	"github.com/doorpin/server/internal/httpapi"
	"github.com/doorpin/server/internal/logger"
	"github.com/doorpin/server/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("err", err))
		os.Exit(1)
	}
	log := logger.Setup(os.Stdout, cfg.LogLevel)
	clk := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeStore()

	// Metrics
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Door and decision pipeline
	door := relay.NewActuator(relayDriver(cfg, log), clk, cfg.RelayHold(), log, relay.WithMetrics(collector))
	defer func() {
		if err := door.Close(); err != nil {
			log.Error("close relay", slog.Any("err", err))
		}
	}()

	access := service.NewAccessService(service.AccessDeps{
		Verifier: credential.NewVerifier(st, log),
		Policy:   schedule.NewEvaluator(st, clk, time.Local, log),
		Door:     door,
		Users:    st,
		Events:   st,
		Clock:    clk,
		Metrics:  collector,
	}, log)

	agg := input.NewAggregator(discover(cfg, clk, log), log, collector)
	reader := service.NewReader(agg, access, clk, log)

	// gRPC health
	var health *healthrpc.Server
	if cfg.GRPCAddr != "" {
		health = healthrpc.New(cfg.GRPCAddr, log)
		reader.OnStatus = health.SetReader
		go func() {
			if err := health.Start(); err != nil {
				log.Error("gRPC health server", slog.Any("err", err))
			}
		}()
	}

	if cfg.ReaderAutostart {
		if err := reader.Start(ctx); err != nil {
			log.Warn("reader autostart failed", slog.Any("err", err))
		}
	}

	pruner := service.NewAccessEventPruner(st, service.PrunerConfig{
		RetentionDays: cfg.AccessEventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, clk, log)
	pruner.Start(ctx)

	// HTTP
	limiter := httpapi.NewRateLimiter(cfg.RateLimitPerMinute, collector)
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      log,
		Addr:        cfg.HTTPAddr,
		Access:      access,
		Reader:      reader,
		Credentials: st,
		Limiter:     limiter,
		Metrics:     metrics.Handler(prometheus.DefaultGatherer),
	})

	go func() {
		log.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	limiter.Stop()
	reader.Stop()
	pruner.Stop()
	if health != nil {
		health.Stop()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Store == "memory" {
		ms := memory.New()
		if cfg.Env == "dev" && cfg.DevAPIKey != "" {
			if err := seedMemory(ms, cfg.DevAPIKey); err != nil {
				return nil, nil, err
			}
		}
		log.Info("using in-memory store")
		return ms, func() {}, nil
	}

	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, sqlDB, db.SeedDevOptions{APIKey: cfg.DevAPIKey}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
	}
	writer := db.NewWorker(sqlDB)
	log.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return sqlite.New(sqlDB, writer), closeSQLite(writer, sqlDB), nil
}

func closeSQLite(w *db.Worker, sqlDB *sql.DB) func() {
	return func() {
		w.Close()
		_ = sqlDB.Close()
	}
}

func seedMemory(ms *memory.Store, key string) error {
	suffix, err := apikey.Suffix(key)
	if err != nil {
		return err
	}
	hash, err := apikey.Hash(key)
	if err != nil {
		return err
	}
	admin := ms.AddUser(store.User{Name: "Dev Admin", Role: permission.RoleAdmin, Active: true})
	ms.AddAPIKey(store.APIKey{
		Suffix:      suffix,
		Hash:        hash,
		Description: "dev seed",
		UserID:      admin.ID,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func relayDriver(cfg *config.Config, log *slog.Logger) relay.Driver {
	if cfg.RelayDriver == "log" {
		return relay.LogDriver{Logger: log}
	}
	return relay.GPIODriver{
		Chip:      cfg.RelayChip,
		Offset:    cfg.RelayPin,
		ActiveLow: !cfg.RelayActiveHigh(),
	}
}

func discover(cfg *config.Config, clk clock.Clock, log *slog.Logger) input.Discover {
	switch cfg.InputSource {
	case config.InputEvdev:
		return input.EvdevDiscover(cfg.InputDeviceFilter, keypad.Options{
			Mode:    keypad.ModeStandard,
			Timeout: cfg.InputTimeout(),
		}, clk, log)
	case config.InputT9EM:
		return input.EvdevDiscover(cfg.InputDeviceFilter, keypad.Options{
			Mode:       keypad.ModeEncoded,
			Timeout:    cfg.InputTimeout(),
			PinLength:  cfg.PinLength,
			RfidLength: cfg.RfidLength,
		}, clk, log)
	default:
		return input.Static(input.NewLineSource("stdin", os.Stdin))
	}
}
