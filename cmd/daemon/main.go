package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/inbox-assistant/internal/api"
	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/domain"
	"github.com/ignite/inbox-assistant/internal/gmailclient"
	"github.com/ignite/inbox-assistant/internal/pkg/distlock"
	"github.com/ignite/inbox-assistant/internal/pkg/logger"
	"github.com/ignite/inbox-assistant/internal/pkg/retry"
	"github.com/ignite/inbox-assistant/internal/ratelimit"
	"github.com/ignite/inbox-assistant/internal/run"
	"github.com/ignite/inbox-assistant/internal/store"
)

const runLockKey = "inbox:run"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	log.Println("Starting Inbox Assistant daemon...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	repo := store.New(db)
	if err := repo.EnsureSchema(pingCtx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("Connected to database")

	rdb := connectRedis(cfg.RedisURL)
	if rdb != nil {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Status API
	router := api.SetupRoutes(api.NewHandlers(repo, cfg))
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Printf("Status API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Status API failed: %v", err)
		}
	}()

	// Scheduler loop
	for {
		next := nextRunTime(time.Now(), cfg.Schedule.RunAt)
		log.Printf("Next run scheduled for %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			log.Println("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			return
		case <-time.After(time.Until(next)):
		}

		stats, err := executeRun(ctx, cfg, db, rdb, repo)
		switch {
		case errors.Is(err, run.ErrLocked):
			log.Println("Another run is in progress, skipping this slot")
		case err != nil:
			log.Printf("Run failed: %v", err)
		default:
			log.Printf("Run %s finished: outcome=%s processed=%d spam=%d drafts=%d errors=%d",
				stats.RunID, stats.Outcome, stats.EmailsProcessed,
				stats.SpamDeleted, stats.DraftsCreated, stats.Errors)
		}
	}
}

// nextRunTime picks the earliest configured "HH:MM" slot after now,
// rolling into tomorrow when todays slots have all passed. Malformed
// entries are skipped; Validate rejects them at startup.
func nextRunTime(now time.Time, slots []string) time.Time {
	var next time.Time
	for _, slot := range slots {
		t, err := time.Parse("15:04", slot)
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	if next.IsZero() {
		// No usable slots; fall back to an hourly cadence.
		return now.Add(time.Hour)
	}
	return next
}

func executeRun(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client, repo *store.Store) (*domain.RunStats, error) {
	limits := cfg.ProcessingLimits.Limits()

	lock := distlock.New(rdb, db, runLockKey, limits.MaxDuration+5*time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, run.ErrLocked
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("run lock release failed", "error", err.Error())
		}
	}()

	mail, err := gmailclient.New(ctx, cfg.Gmail.CredentialsPath, cfg.Gmail.TokenPath)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(limits.InterCallDelay, rdb, cfg.ProcessingLimits.DailyCallBudget, retry.DefaultPolicy())
	mail.SetPacer(limiter)

	runner, err := run.New(cfg, mail, repo, limiter)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

func connectRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("Invalid REDIS_URL, continuing without Redis: %v", err)
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable, continuing without it: %v", err)
		rdb.Close()
		return nil
	}
	log.Println("Connected to Redis")
	return rdb
}
