package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

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

// runLockKey guards against overlapping runs on the same mailbox.
const runLockKey = "inbox:run"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	log.Println("Starting Inbox Assistant processor...")

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

	stats, err := executeRun(ctx, cfg, db, rdb, repo)
	if errors.Is(err, run.ErrLocked) {
		log.Println("Another run is in progress, nothing to do")
		return
	}
	if err != nil {
		log.Printf("Run failed: %v", err)
		os.Exit(1)
	}

	log.Printf("Run %s finished: outcome=%s processed=%d spam=%d drafts=%d flagged=%d skipped=%d errors=%d",
		stats.RunID, stats.Outcome, stats.EmailsProcessed, stats.SpamDeleted,
		stats.DraftsCreated, stats.UnsubscribeFlagged, stats.Skipped, stats.Errors)
}

// executeRun takes the run lock, builds the pipeline, and runs once.
func executeRun(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client, repo *store.Store) (*domain.RunStats, error) {
	limits := cfg.ProcessingLimits.Limits()

	// TTL must outlive the longest allowed run so a crash cannot wedge
	// the schedule, with headroom for finalization.
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

// connectRedis returns a verified client or nil. Redis is optional: the
// limiter falls back to pacing-only and the run lock to a Postgres
// advisory lock.
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
