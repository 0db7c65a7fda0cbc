package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/civic-os/calprovider/internal/alarms"
	"github.com/civic-os/calprovider/internal/api"
	"github.com/civic-os/calprovider/internal/caltime"
	"github.com/civic-os/calprovider/internal/config"
	"github.com/civic-os/calprovider/internal/instancecache"
	"github.com/civic-os/calprovider/internal/store"
)

var (
	// version is set at compile time via -ldflags -X
	version = "dev"
)

func main() {
	log.Println("========================================")
	log.Println("  calprovider - Calendar Event Provider")
	log.Printf("  Version: %s", version)
	log.Println("========================================")

	ctx := context.Background()

	// ===========================================================================
	// 1. Load Configuration from Environment
	// ===========================================================================
	cfg := config.Load()
	logConfig(cfg)

	// ===========================================================================
	// 2. Initialize PostgreSQL Connection Pool (SINGLE POOL FOR D, C, AND A)
	// ===========================================================================
	log.Println("[Init] Configuring PostgreSQL connection pool...")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Init] Failed to parse database URL: %v", err)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "calprovider " + version
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MinConns = int32(cfg.DBMinConns)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("[Init] Failed to create database pool: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatalf("[Init] Failed to ping database: %v", err)
	}
	log.Printf("[Init] ✓ Database connection pool established (max: %d, min: %d)", cfg.DBMaxConns, cfg.DBMinConns)

	facade := store.New(dbPool)

	log.Println("[Init] Applying migrations...")
	if err := facade.ApplyMigrations(ctx); err != nil {
		log.Fatalf("[Init] Failed to apply migrations: %v", err)
	}
	log.Println("[Init] ✓ Migrations applied")

	// ===========================================================================
	// 3. Initialize Instances Cache (C) and Alarm Scheduler (A)
	// ===========================================================================
	deviceZone := func() string {
		if cfg.InstancesTimezoneType == string(store.TimezoneHome) {
			return cfg.InstancesHomeTimezone
		}
		return deviceLocalZone()
	}

	cache := instancecache.New(facade, cfg.MinimumExpansionSpan, deviceZone)
	log.Println("[Init] ✓ Instances cache initialized")

	host := &logHost{}
	scheduler := alarms.New(facade, cache, host, nil, cfg.AlarmSchedulerDelay)
	host.scheduler = scheduler
	log.Println("[Init] ✓ Alarm scheduler initialized")

	fallback := alarms.NewFallbackScheduler(scheduler)
	if err := fallback.Start(ctx); err != nil {
		log.Fatalf("[Init] Failed to start fallback scheduler: %v", err)
	}
	log.Println("[Init] ✓ Fallback scheduler started (24h cron tick)")

	// ===========================================================================
	// 4. Register River Workers
	// ===========================================================================
	log.Println("[Init] Registering River workers...")
	workers := river.NewWorkers()

	river.AddWorker(workers, &instancecache.ExtendInstancesWindowWorker{Cache: cache})
	log.Println("[Init] ✓ ExtendInstancesWindowWorker registered (queue: instances)")

	river.AddWorker(workers, &alarms.ScheduleNextWorker{Scheduler: scheduler})
	log.Println("[Init] ✓ ScheduleNextWorker registered (queue: alarms)")

	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			"instances": {MaxWorkers: 5},
			"alarms":    {MaxWorkers: 2},
		},
		Workers: workers,
		Logger:  slog.Default(),
		Schema:  "metadata",
	})
	if err != nil {
		log.Fatalf("[Init] Failed to create River client: %v", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		log.Fatalf("[Init] Failed to start River client: %v", err)
	}
	log.Println("[Init] ✓ River client started")

	// api.Core is the typed entry-point surface (spec §9); api.URIFacade
	// wraps it for URI-dispatched callers (e.g. an HTTP or gRPC adapter
	// layered on top, out of scope for this binary). Its write paths
	// enqueue ExtendInstancesWindowArgs/ScheduleNextArgs through
	// riverClient rather than calling C/A in-process.
	core := api.New(facade, cache, riverClient)

	// Prime the cache and arm the first alarm pass on boot.
	scheduler.ScheduleNext(ctx, false)

	// SIGHUP/SIGUSR1 stand in for the host environment signals spec §6
	// says the core consumes ("timezone changed", "device storage ok");
	// a real device integration would call core.HandleSignal directly
	// from its own notification path instead of a process signal.
	envSignals := make(chan os.Signal, 1)
	signal.Notify(envSignals, syscall.SIGHUP, syscall.SIGUSR1)
	go func() {
		for sig := range envSignals {
			var s api.Signal
			switch sig {
			case syscall.SIGHUP:
				s = api.SignalTimezoneChanged
			case syscall.SIGUSR1:
				s = api.SignalDeviceStorageOK
			}
			if err := core.HandleSignal(ctx, s); err != nil {
				log.Printf("[Core] signal handling failed: %v", err)
			}
		}
	}()

	log.Println("")
	log.Println("========================================")
	log.Println("calprovider is running!")
	log.Println("========================================")
	log.Println("Press Ctrl+C to shutdown gracefully...")

	// ===========================================================================
	// 5. Graceful Shutdown
	// ===========================================================================
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("")
	log.Println("[Shutdown] Signal received, stopping gracefully...")

	fallback.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Printf("[Shutdown] Error stopping River client: %v", err)
	}

	log.Println("[Shutdown] ✓ River client stopped")
	log.Println("[Shutdown] ✓ Shutdown complete")
}

// logHost is the Host spec §4.5 steps 5/6 describe as "asks the host to
// fire the earliest one": outside of a device with a real AlarmManager
// equivalent, calprovider arms a process-local timer that re-enters the
// scheduler at the requested instant, which is the server-side analogue
// of waking up and re-evaluating.
type logHost struct {
	scheduler *alarms.Scheduler
}

func (h *logHost) ArmAlarm(at caltime.Millis) {
	d := time.UnixMilli(int64(at)).Sub(time.Now())
	log.Printf("[Host] arming next alarm pass at %s (in %s)", time.UnixMilli(int64(at)).UTC(), d)
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, func() {
		h.scheduler.ScheduleNext(context.Background(), false)
	})
}

// deviceLocalZone resolves the host process's local IANA timezone for
// AUTO mode (spec §4.4 step 1). A containerized deployment typically
// fixes this via the TZ environment variable.
func deviceLocalZone() string {
	return time.Local.String()
}

// logConfig prints the resolved configuration at startup, the
// database URL's password masked before it ever reaches a log line.
func logConfig(cfg config.Config) {
	log.Printf("[Init] Configuration loaded:")
	log.Printf("[Init]   Database: %s", safeDatabaseURL(cfg.DatabaseURL))
	log.Printf("[Init]   Instances Timezone Type: %s", cfg.InstancesTimezoneType)
	log.Printf("[Init]   Instances Home Timezone: %s", cfg.InstancesHomeTimezone)
	log.Printf("[Init]   Alarm Scheduler Delay: %s", cfg.AlarmSchedulerDelay)
	log.Printf("[Init]   Minimum Expansion Span: %s", cfg.MinimumExpansionSpan)
	log.Printf("[Init]   DB Max Connections: %d", cfg.DBMaxConns)
	log.Printf("[Init]   DB Min Connections: %d", cfg.DBMinConns)
}

// safeDatabaseURL swaps dbURL's password for a placeholder via
// url.UserPassword so it's safe to log; a malformed or passwordless
// URL passes through unchanged (aside from the invalid-URL sentinel).
func safeDatabaseURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[invalid-url]"
	}
	if parsed.User == nil {
		return dbURL
	}
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return dbURL
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "****")
	return parsed.String()
}
