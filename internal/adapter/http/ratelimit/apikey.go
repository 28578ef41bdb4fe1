package ratelimit

import (
	"sync"
	"time"
)

type FailureRecord struct {
	Count        int
	LastFailure  time.Time
	BlockedUntil time.Time
}

// KeyRateLimiter blocks clients that present too many bad API keys.
// Only failures are counted; a valid key clears the client's record.
type KeyRateLimiter struct {
	mu             sync.Mutex
	failures       map[string]*FailureRecord
	maxFailures    int
	windowDuration time.Duration
	blockDuration  time.Duration
	lastPrune      time.Time
	now            func() time.Time
}

func NewKeyRateLimiter(maxFailures int, windowDuration, blockDuration time.Duration) *KeyRateLimiter {
	return &KeyRateLimiter{
		failures:       make(map[string]*FailureRecord),
		maxFailures:    maxFailures,
		windowDuration: windowDuration,
		blockDuration:  blockDuration,
		now:            time.Now,
	}
}

// Blocked reports whether clientID is currently locked out and for how long.
func (r *KeyRateLimiter) Blocked(clientID string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.failures[clientID]
	if !ok {
		return false, 0
	}
	now := r.now()
	if now.Before(record.BlockedUntil) {
		return true, record.BlockedUntil.Sub(now)
	}
	return false, 0
}

// Fail records a rejected key and returns true when the client just
// crossed the limit.
func (r *KeyRateLimiter) Fail(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)

	record, ok := r.failures[clientID]
	if !ok {
		record = &FailureRecord{}
		r.failures[clientID] = record
	}

	if now.Sub(record.LastFailure) > r.windowDuration {
		record.Count = 0
	}
	record.Count++
	record.LastFailure = now

	if record.Count >= r.maxFailures {
		record.BlockedUntil = now.Add(r.blockDuration)
		record.Count = 0
		return true
	}
	return false
}

func (r *KeyRateLimiter) Reset(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.failures, clientID)
}

func (r *KeyRateLimiter) pruneLocked(now time.Time) {
	if now.Sub(r.lastPrune) < time.Minute {
		return
	}
	r.lastPrune = now

	for clientID, record := range r.failures {
		if now.Sub(record.LastFailure) > r.windowDuration*2 && now.After(record.BlockedUntil) {
			delete(r.failures, clientID)
		}
	}
}
