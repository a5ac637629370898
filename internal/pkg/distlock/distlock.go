// Package distlock serializes processing runs across processes.
//
// Two runs against the same account must never overlap; the run lock is
// the process-level guard (cross-run idempotence in the store remains the
// correctness guard if the lock is ever bypassed). Redis is the preferred
// backend; without Redis a PostgreSQL advisory lock is used, which the
// database releases automatically if the holding connection drops.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is the interface for the run mutual-exclusion lock.
type RunLock interface {
	// Acquire tries to take the lock. Returns false when another run holds it.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this process still owns it.
	Release(ctx context.Context) error
}

// New creates a run lock using the best available backend.
func New(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) RunLock {
	if rdb != nil {
		return NewRedisLock(rdb, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// RedisLock implements RunLock via SET NX with a TTL. A random ownership
// value plus a Lua release script prevents one process from releasing a
// lock another process has since acquired.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed run lock. The TTL should exceed the
// longest allowed run so a crashed run cannot wedge the schedule forever.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to take the lock. Returns true if successful.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the lock only if this process still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.value).Result()
	return err
}

// PGAdvisoryLock implements RunLock using session-scoped PostgreSQL
// advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic lock ID from the key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries pg_try_advisory_lock, which returns immediately.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
