// Package ratelimit bounds how often and how concurrently one caller may hit
// an expensive endpoint. State is in-process only.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	// RPS and Burst configure the token bucket. Either <= 0 disables it.
	RPS   float64
	Burst int
	// MaxConcurrent <= 0 disables the in-flight cap.
	MaxConcurrent int

	MaxEntries int
	EntryTTL   time.Duration
}

// Enabled reports whether any limit is configured.
func (c Config) Enabled() bool {
	return (c.RPS > 0 && c.Burst > 0) || c.MaxConcurrent > 0
}

type Limiter struct {
	cfg Config

	mu      sync.Mutex
	callers map[string]*caller
}

type caller struct {
	mu       sync.Mutex
	bucket   tokenBucket
	inflight chan struct{}
	lastSeen time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
	primed bool
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		callers: make(map[string]*caller),
	}
}

// KeyFromToken hashes a bearer token so raw secrets never become map keys.
func KeyFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "k_" + hex.EncodeToString(sum[:16])
}

// Permit is held for the duration of an admitted request.
type Permit struct {
	release func()
}

// Release is safe to call more than once and on a nil Permit.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed bool
	// RetryAfter is in whole seconds, set when Allowed is false.
	RetryAfter int
	Permit     *Permit
}

// Acquire admits one request for key. The caller must release the permit
// of an allowed decision.
func (l *Limiter) Acquire(key string, now time.Time) Decision {
	if key == "" {
		key = "anonymous"
	}
	c := l.lookup(key, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := c.take(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{RetryAfter: retryAfter}
		}
	}

	if l.cfg.MaxConcurrent > 0 {
		select {
		case c.inflight <- struct{}{}:
			return Decision{Allowed: true, Permit: &Permit{release: func() { <-c.inflight }}}
		default:
			return Decision{RetryAfter: 1}
		}
	}
	return Decision{Allowed: true, Permit: &Permit{}}
}

func (l *Limiter) lookup(key string, now time.Time) *caller {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}
	if len(l.callers) >= l.cfg.MaxEntries {
		l.evictLocked(now)
	}
	c := &caller{
		inflight: make(chan struct{}, max(1, l.cfg.MaxConcurrent)),
		lastSeen: now,
	}
	l.callers[key] = c
	return c
}

// evictLocked drops idle callers, then an arbitrary one if the map is still
// full.
func (l *Limiter) evictLocked(now time.Time) {
	for k, c := range l.callers {
		if now.Sub(c.lastSeen) > l.cfg.EntryTTL && len(c.inflight) == 0 {
			delete(l.callers, k)
		}
	}
	if len(l.callers) < l.cfg.MaxEntries {
		return
	}
	for k := range l.callers {
		delete(l.callers, k)
		return
	}
}

func (c *caller) take(now time.Time, rps float64, burst int) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	capacity := float64(burst)
	if !c.bucket.primed {
		c.bucket = tokenBucket{tokens: capacity, last: now, primed: true}
	}
	if elapsed := now.Sub(c.bucket.last).Seconds(); elapsed > 0 {
		c.bucket.tokens = math.Min(capacity, c.bucket.tokens+elapsed*rps)
		c.bucket.last = now
	}

	if c.bucket.tokens >= 1 {
		c.bucket.tokens--
		return true, 0
	}
	retryAfter := int(math.Ceil((1 - c.bucket.tokens) / rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
