// Package ratelimit implements the gateway's per-IP sliding-window rate
// limit: a fixed number of requests per 60-second window, returned to
// callers as an HTTP 429 plus a Retry-After hint once exceeded.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	windowSize      = 60 * time.Second
	cleanupInterval = 5 * time.Minute
	staleAfter      = 10 * time.Minute
)

// window tracks one IP's request timestamps within the sliding window.
type window struct {
	mu       sync.Mutex
	requests []time.Time
	lastSeen time.Time
}

func (w *window) allow(maxRequests int) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.lastSeen = now
	cutoff := now.Add(-windowSize)

	valid := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	w.requests = valid

	if len(w.requests) >= maxRequests {
		retryAfter := windowSize - now.Sub(w.requests[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	w.requests = append(w.requests, now)
	return true, 0
}

// Limiter enforces maxRequests per 60-second window per IP key.
type Limiter struct {
	maxRequests int

	mu       sync.Mutex
	windows  map[string]*window
	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter constructs a Limiter allowing maxRequests per IP per
// 60-second window, and starts its background cleanup goroutine.
func NewLimiter(maxRequests int) *Limiter {
	l := &Limiter{
		maxRequests: maxRequests,
		windows:     make(map[string]*window),
		stop:        make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from ip is permitted. When it is not,
// retryAfter indicates how long the caller should wait before retrying.
func (l *Limiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	w, ok := l.windows[ip]
	if !ok {
		w = &window{lastSeen: time.Now()}
		l.windows[ip] = w
	}
	l.mu.Unlock()

	return w.allow(l.maxRequests)
}

// Stop halts the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *Limiter) evictStale() {
	cutoff := time.Now().Add(-staleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for ip, w := range l.windows {
		w.mu.Lock()
		stale := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(l.windows, ip)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("rate limiter evicted stale IP windows")
	}
}
