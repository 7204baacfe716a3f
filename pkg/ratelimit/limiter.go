// Package ratelimit throttles chat commands per user so a single member cannot
// hammer the process supervisor through the bot.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// CommandsPerMinute is the sustained rate per user; 0 disables limiting.
	CommandsPerMinute int
	// Burst is how many commands a user may send back to back. Defaults to
	// CommandsPerMinute when zero.
	Burst int
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		CommandsPerMinute: 6,
		Burst:             3,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per user.
type Limiter struct {
	config  Config
	mu      sync.Mutex
	buckets map[string]*entry
	now     func() time.Time
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	if config.Burst <= 0 {
		config.Burst = config.CommandsPerMinute
	}
	return &Limiter{
		config:  config,
		buckets: make(map[string]*entry),
		now:     time.Now,
	}
}

// Enabled reports whether the limiter throttles anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.CommandsPerMinute > 0
}

func (l *Limiter) bucket(userID string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.buckets[userID]
	if !ok {
		every := time.Minute / time.Duration(l.config.CommandsPerMinute)
		e = &entry{limiter: rate.NewLimiter(rate.Every(every), l.config.Burst)}
		l.buckets[userID] = e
	}
	e.lastSeen = l.now()
	return e
}

// Allow reports whether userID may run a command now, consuming a token if so.
func (l *Limiter) Allow(userID string) bool {
	if !l.Enabled() {
		return true
	}
	return l.bucket(userID).limiter.AllowN(l.now(), 1)
}

// RetryAfter estimates how long userID must wait for the next token, without
// consuming one.
func (l *Limiter) RetryAfter(userID string) time.Duration {
	if !l.Enabled() {
		return 0
	}
	now := l.now()
	r := l.bucket(userID).limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// Cleanup drops buckets idle for longer than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, e := range l.buckets {
		if now.Sub(e.lastSeen) > maxAge {
			delete(l.buckets, id)
		}
	}
}

// Size returns the number of tracked users.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
