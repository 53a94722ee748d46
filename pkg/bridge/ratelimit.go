// Copyright 2025-2026 Mvemba Research Systems

package bridge

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window request counter per client key. The window
// resets limit requests every interval; there is no smoothing between
// windows, matching the gateway's 60-requests-per-minute contract.
type rateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*windowEntry
}

type windowEntry struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*windowEntry),
	}
}

// Allow reports whether the client identified by key may make another request
// in the current window.
func (rl *rateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[key]
	if !ok || now.Sub(entry.start) >= rl.window {
		rl.prune(now)
		rl.clients[key] = &windowEntry{start: now, count: 1}
		return true
	}
	entry.count++
	return entry.count <= rl.limit
}

// prune drops expired windows. Called with the mutex held, on window
// rollover, so a churn of one-off clients cannot grow the map forever.
func (rl *rateLimiter) prune(now time.Time) {
	for key, entry := range rl.clients {
		if now.Sub(entry.start) >= rl.window {
			delete(rl.clients, key)
		}
	}
}
