package auth

import (
	"strconv"
	"sync"
	"time"

	"github.com/jollyrodger/pika/internal/config"
)

// RateLimiter throttles login attempts per client IP and username.
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[attemptKey]*attemptRecord
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

type attemptKey struct {
	ip       string
	username string
}

type attemptRecord struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// NewRateLimiter creates a rate limiter from the auth configuration and
// starts a goroutine that forgets stale records every cleanupInterval.
func NewRateLimiter(cfg config.Auth, cleanupInterval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts:    make(map[attemptKey]*attemptRecord),
		maxAttempts: cfg.MaxLoginAttempts,
		window:      cfg.RateLimitWindow,
		lockout:     cfg.LockoutDuration,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	if rl.maxAttempts <= 0 {
		rl.maxAttempts = 5
	}
	if rl.window <= 0 {
		rl.window = 15 * time.Minute
	}
	if rl.lockout <= 0 {
		rl.lockout = 30 * time.Minute
	}
	if cleanupInterval > 0 {
		go rl.cleanupLoop(cleanupInterval)
	}
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether another attempt may be made and, if not, how long
// the caller has to wait.
func (rl *RateLimiter) Allow(ip, username string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	record, ok := rl.attempts[attemptKey{ip, username}]
	if !ok {
		return true, 0
	}
	if now.Before(record.lockedUntil) {
		return false, record.lockedUntil.Sub(now)
	}
	if now.Sub(record.windowStart) > rl.window {
		return true, 0
	}
	return record.count < rl.maxAttempts, 0
}

// RecordFailure counts a failed attempt and reports whether it triggered a lockout.
func (rl *RateLimiter) RecordFailure(ip, username string) bool {
	now := rl.now()
	key := attemptKey{ip, username}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	record, ok := rl.attempts[key]
	if !ok || now.Sub(record.windowStart) > rl.window {
		record = &attemptRecord{windowStart: now}
		rl.attempts[key] = record
	}

	record.count++
	if record.count >= rl.maxAttempts {
		record.lockedUntil = now.Add(rl.lockout)
		return true
	}
	return false
}

// RecordSuccess forgets the failures of a client after a successful login.
func (rl *RateLimiter) RecordSuccess(ip, username string) {
	rl.mu.Lock()
	delete(rl.attempts, attemptKey{ip, username})
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, record := range rl.attempts {
		if now.Sub(record.windowStart) > rl.window && !now.Before(record.lockedUntil) {
			delete(rl.attempts, key)
		}
	}
}

// RetryAfterSeconds formats a wait for the Retry-After header.
func RetryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
