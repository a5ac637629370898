// Package ratelimit throttles calls against the external mail service.
//
// Two mechanisms compose: a fixed minimum delay between consecutive calls
// (pacing) and an optional Redis-backed daily token budget mirroring the
// service quota. Both sit underneath a retry policy so transient failures
// back off without burning extra budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/inbox-assistant/internal/pkg/retry"
)

// ErrBudgetExhausted is returned once the daily call budget is spent.
// Budget exhaustion is a graceful stop signal, not a transient failure.
var ErrBudgetExhausted = errors.New("daily call budget exhausted")

// Atomically increments the daily counter only while under the limit.
const budgetScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// Limiter enforces call spacing and the daily budget. Safe for concurrent
// use, though the processing loop is single-threaded by design.
type Limiter struct {
	mu       sync.Mutex
	delay    time.Duration
	last     time.Time
	rdb      *redis.Client // nil disables the budget
	budget   int
	script   *redis.Script
	policy   retry.Policy
	now      func() time.Time
	sleepFor func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the given inter-call delay and retry policy.
// rdb may be nil, in which case only pacing applies.
func New(delay time.Duration, rdb *redis.Client, dailyBudget int, policy retry.Policy) *Limiter {
	return &Limiter{
		delay:    delay,
		rdb:      rdb,
		budget:   dailyBudget,
		script:   redis.NewScript(budgetScript),
		policy:   policy,
		now:      time.Now,
		sleepFor: sleep,
	}
}

// Do executes one external call: wait out the minimum spacing, reserve a
// budget token, then run the call under the retry policy.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	if err := l.reserve(ctx); err != nil {
		return err
	}
	return l.policy.Do(ctx, fn)
}

// Wait blocks until the minimum inter-call delay since the previous call
// has elapsed. For N consecutive calls the total elapsed time is at least
// (N-1) * delay.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	next := l.last.Add(l.delay)
	var wait time.Duration
	if l.last.IsZero() || !next.After(now) {
		l.last = now
	} else {
		wait = next.Sub(now)
		l.last = next
	}
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return l.sleepFor(ctx, wait)
}

// reserve takes one token from today's budget.
func (l *Limiter) reserve(ctx context.Context) error {
	if l.rdb == nil || l.budget <= 0 {
		return nil
	}
	key := fmt.Sprintf("inbox:budget:%s", l.now().UTC().Format("2006-01-02"))
	allowed, err := l.script.Run(ctx, l.rdb, []string{key},
		l.budget,
		90000, // 25h TTL so the key outlives its day
	).Int()
	if err != nil {
		// Redis being down must not stall the run; pacing still applies.
		return nil
	}
	if allowed == 0 {
		return ErrBudgetExhausted
	}
	return nil
}

// Usage reports today's consumed budget. Zero when no budget is configured.
func (l *Limiter) Usage(ctx context.Context) (int, error) {
	if l.rdb == nil {
		return 0, nil
	}
	key := fmt.Sprintf("inbox:budget:%s", l.now().UTC().Format("2006-01-02"))
	n, err := l.rdb.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
