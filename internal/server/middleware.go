package server

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// RateLimiter implements per-key rate limiting using a sliding window.
// Keys are opaque strings: a connection id for socket traffic, or
// roomKey/author for chat traffic.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
}

// NewRateLimiter creates a rate limiter allowing maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether the key may proceed, recording the attempt if so.
// Old timestamps are dropped and the remaining ones counted, which gives
// smoother limiting than fixed windows.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[key]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}

	valid = append(valid, now)
	r.requests[key] = valid
	return true
}

// Cleanup removes keys with no recent activity. Should be called
// periodically so disconnected clients don't leak map entries.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for key, timestamps := range r.requests {
		allOld := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				allOld = false
				break
			}
		}
		if allOld {
			delete(r.requests, key)
		}
	}
}

// RemoveKey immediately drops rate limit data for a key.
// Called when a websocket disconnects.
func (r *RateLimiter) RemoveKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, key)
}

// ValidateMessageType checks that a websocket frame type is recognized.
func ValidateMessageType(msgType string) error {
	validTypes := map[string]bool{
		"ping":       true,
		"join_room":  true,
		"reconnect":  true,
		"action":     true,
		"leave_room": true,
	}

	if !validTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

// ValidateDisplayName checks display name requirements.
func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("NAME_INVALID: Display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 24 {
		return fmt.Errorf("NAME_INVALID: Display name too long (max 24 characters)")
	}
	return nil
}
