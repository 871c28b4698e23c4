package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrader/internal/api"
	"papertrader/internal/events"
	"papertrader/internal/market"
	"papertrader/internal/monitor"
	"papertrader/internal/persistence"
	"papertrader/internal/risk"
	"papertrader/internal/sim"
	"papertrader/pkg/config"
	"papertrader/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[BOOT] config load failed: %v", err)
	}
	log.Printf("[BOOT] starting paper trading simulator on port %s", cfg.Port)
	log.Printf("[BOOT] using database at %s", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[BOOT] db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[BOOT] db migrations failed: %v", err)
	}

	// One engine per user, rehydrated from the snapshot store on first
	// touch after a restart or idle eviction.
	sessions := sim.NewManager(func(userID string) (*sim.Engine, error) {
		eng := sim.NewEngine(userID, bus)
		snap, err := persistence.Load(ctx, database, userID)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			if err := eng.Restore(*snap); err != nil {
				log.Printf("[SESSION] restore failed for %s, starting fresh: %v", userID, err)
			} else {
				log.Printf("[SESSION] rehydrated session for %s", userID)
			}
		}
		return eng, nil
	})

	writer := persistence.NewWriter(database, bus, cfg.FlushInterval)
	defer func() {
		if err := writer.Close(); err != nil {
			log.Printf("[PERSIST] final flush failed: %v", err)
		}
	}()

	// Named risk presets from YAML, synced into the DB for the UI.
	if cfg.RiskPresetsPath != "" {
		presets, err := risk.LoadPresets(cfg.RiskPresetsPath)
		if err != nil {
			log.Printf("[RISK] preset load failed: %v", err)
		} else if err := risk.SyncPresetsToDB(ctx, database, presets); err != nil {
			log.Printf("[RISK] preset sync failed: %v", err)
		} else {
			log.Printf("[RISK] synced %d presets from %s", len(presets), cfg.RiskPresetsPath)
		}
	}

	sysMetrics := monitor.NewSystemMetrics()

	prices := market.NewPriceCache()
	feed := market.MockFeed{
		Bus:      bus,
		Cache:    prices,
		Symbols:  cfg.Symbols,
		Interval: cfg.TickInterval,
	}
	feed.Start(ctx)
	log.Printf("[FEED] synthetic feed started for %v", cfg.Symbols)

	tickStream, unsubTicks := bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	go func() {
		for range tickStream {
			sysMetrics.IncrementTicks()
		}
	}()

	// Periodic housekeeping: session stats for metrics and idle eviction.
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sessions.CleanupIdle(cfg.SessionTTL)
				persisted, err := database.CountSessions(ctx)
				if err != nil {
					log.Printf("[SESSION] count failed: %v", err)
					continue
				}
				sysMetrics.SetSessionCounts(sessions.UserCount(), persisted)
			}
		}
	}()

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	server := api.NewServer(
		bus,
		database,
		sessions,
		prices,
		sysMetrics,
		writer,
		api.SystemMeta{
			Symbols: cfg.Symbols,
			Version: buildVersion,
		},
		cfg.JWTSecret,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("[API] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("[BOOT] shutting down")
}
