// Package ratelimit enforces per-user request quotas over sliding windows.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures the limiter.
type Config struct {
	// PerMinute is the number of requests allowed in any rolling minute.
	PerMinute int `yaml:"per_minute"`
	// PerHour is the number of requests allowed in any rolling hour.
	PerHour int `yaml:"per_hour"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		PerMinute: 20,
		PerHour:   100,
		Enabled:   true,
	}
}

// Decision is the outcome of an Allow check.
type Decision struct {
	// Allowed reports whether the request was admitted and recorded.
	Allowed bool
	// RetryAfter is how long until a retry could succeed; zero when allowed.
	RetryAfter time.Duration
	// RemainingMinute and RemainingHour are the unused slots left in each
	// window after this decision.
	RemainingMinute int
	RemainingHour   int
}

// Status reports window occupancy for a key without recording anything.
type Status struct {
	Key             string        `json:"key"`
	AllowedNow      bool          `json:"allowed_now"`
	RemainingMinute int           `json:"remaining_minute"`
	RemainingHour   int           `json:"remaining_hour"`
	RetryAfter      time.Duration `json:"retry_after"`
}

// entry holds one key's request timestamps, ascending. The minute window is
// a strict subset of the hour window, so a single list serves both: the
// suffix newer than a minute ago is the minute window, the whole list the
// hour window.
type entry struct {
	stamps   []time.Time
	lastSeen time.Time
}

// Limiter admits requests per key against two sliding windows. A request
// must fit in both windows; a denied request records nothing, so repeated
// probing never consumes quota.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a limiter with the given config. Non-positive limits
// fall back to the defaults.
func NewLimiter(config Config) *Limiter {
	if config.PerMinute <= 0 {
		config.PerMinute = DefaultConfig().PerMinute
	}
	if config.PerHour <= 0 {
		config.PerHour = DefaultConfig().PerHour
	}
	return &Limiter{
		entries: make(map[string]*entry),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow checks both windows for key and, when the request fits, records it.
// Check and record happen under one lock so concurrent callers cannot admit
// past the limit.
func (l *Limiter) Allow(key string) Decision {
	if !l.config.Enabled {
		return Decision{
			Allowed:         true,
			RemainingMinute: l.config.PerMinute,
			RemainingHour:   l.config.PerHour,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entries[key]
	if e == nil {
		if len(l.entries) >= l.maxKeys {
			l.evictOldestIdle()
		}
		e = &entry{}
		l.entries[key] = e
	}
	e.lastSeen = now

	minuteCount, hourCount, retryAfter := l.inspect(e, now)
	decision := Decision{
		RemainingMinute: l.config.PerMinute - minuteCount,
		RemainingHour:   l.config.PerHour - hourCount,
	}
	if retryAfter > 0 {
		decision.RetryAfter = retryAfter
		return decision
	}

	e.stamps = append(e.stamps, now)
	decision.Allowed = true
	decision.RemainingMinute--
	decision.RemainingHour--
	return decision
}

// Status reports the state of key's windows without recording a request.
func (l *Limiter) Status(key string) Status {
	if !l.config.Enabled {
		return Status{
			Key:             key,
			AllowedNow:      true,
			RemainingMinute: l.config.PerMinute,
			RemainingHour:   l.config.PerHour,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		return Status{
			Key:             key,
			AllowedNow:      true,
			RemainingMinute: l.config.PerMinute,
			RemainingHour:   l.config.PerHour,
		}
	}

	now := l.now()
	minuteCount, hourCount, retryAfter := l.inspect(e, now)
	return Status{
		Key:             key,
		AllowedNow:      retryAfter == 0,
		RemainingMinute: l.config.PerMinute - minuteCount,
		RemainingHour:   l.config.PerHour - hourCount,
		RetryAfter:      retryAfter,
	}
}

// Reset clears all recorded requests for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// inspect prunes expired stamps and reports window occupancy plus how long
// until the fuller window admits a request. Zero retryAfter means an admit
// would succeed now. Must be called with the lock held.
func (l *Limiter) inspect(e *entry, now time.Time) (minuteCount, hourCount int, retryAfter time.Duration) {
	hourCutoff := now.Add(-time.Hour)
	idx := 0
	for idx < len(e.stamps) && !e.stamps[idx].After(hourCutoff) {
		idx++
	}
	e.stamps = e.stamps[idx:]

	minuteCutoff := now.Add(-time.Minute)
	for i := len(e.stamps) - 1; i >= 0 && e.stamps[i].After(minuteCutoff); i-- {
		minuteCount++
	}
	hourCount = len(e.stamps)

	if minuteCount >= l.config.PerMinute {
		oldest := e.stamps[len(e.stamps)-minuteCount]
		retryAfter = oldest.Add(time.Minute).Sub(now)
	}
	if hourCount >= l.config.PerHour {
		if wait := e.stamps[0].Add(time.Hour).Sub(now); wait > retryAfter {
			retryAfter = wait
		}
	}
	return minuteCount, hourCount, retryAfter
}

// evictOldestIdle drops the entry that has gone unused the longest. Must be
// called with the lock held.
func (l *Limiter) evictOldestIdle() {
	var oldestKey string
	var oldestSeen time.Time
	first := true
	for key, e := range l.entries {
		if first || e.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = e.lastSeen
			first = false
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}
