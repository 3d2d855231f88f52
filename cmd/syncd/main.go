// Command syncd runs the reading tracker's sync daemon: it opens the local
// store, hydrates preferences on startup and runs batch reconciliation
// passes on a cron schedule until interrupted.
// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/sabristratos/athneaeum-sub005/shelfstore"
	"github.com/sabristratos/athneaeum-sub005/shelfsync"
)

type config struct {
	DatabasePath string
	ServerURL    string
	JWTSecret    string
	UserID       string
	DeviceID     string
	TokenTTL     time.Duration
	SyncSchedule string
	BatchLimit   int
}

func loadConfig() *config {
	v := viper.New()
	v.SetEnvPrefix("SYNCD")
	v.AutomaticEnv()
	v.SetDefault("database_path", "./athenaeum.db")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("user_id", "")
	v.SetDefault("device_id", "")
	v.SetDefault("token_ttl", "1h")
	v.SetDefault("sync_schedule", "*/5 * * * *") // every 5 minutes
	v.SetDefault("batch_limit", 200)

	return &config{
		DatabasePath: v.GetString("database_path"),
		ServerURL:    v.GetString("server_url"),
		JWTSecret:    v.GetString("jwt_secret"),
		UserID:       v.GetString("user_id"),
		DeviceID:     v.GetString("device_id"),
		TokenTTL:     v.GetDuration("token_ttl"),
		SyncSchedule: v.GetString("sync_schedule"),
		BatchLimit:   v.GetInt("batch_limit"),
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.New().String()
	}

	store, err := shelfstore.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	tokens := shelfsync.NewTokenSource(cfg.JWTSecret, cfg.UserID, cfg.DeviceID, cfg.TokenTTL)
	client := shelfsync.NewClient(cfg.ServerURL, tokens.Token)
	reconciler := shelfsync.NewReconciler(store, client, &shelfsync.Config{
		BatchLimit: cfg.BatchLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if applied, err := reconciler.HydratePreferences(ctx); err != nil {
		logger.Warn("preference hydration failed, continuing offline", "err", err)
	} else if applied > 0 {
		logger.Info("hydrated preferences", "applied", applied)
	}

	runPass := func() {
		res, err := reconciler.Run(ctx)
		if err != nil {
			logger.Warn("reconciliation pass failed, pending records retained", "err", err)
			return
		}
		if res.Failed > 0 {
			logger.Warn("some records failed to sync",
				"failed", res.Failed, "applied", res.Applied)
			for _, f := range res.Failures {
				logger.Warn("record stayed pending", "err", f.Err())
			}
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, runPass); err != nil {
		logger.Error("invalid sync schedule", "schedule", cfg.SyncSchedule, "err", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("sync daemon started",
		"db", cfg.DatabasePath, "server", cfg.ServerURL, "schedule", cfg.SyncSchedule)

	// One immediate pass so a fresh start does not wait for the first tick.
	runPass()

	<-ctx.Done()
	logger.Info("shutting down")
	<-scheduler.Stop().Done()
}
