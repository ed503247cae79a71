package main

import (
	"sync"
	"time"
)

// Actions gated by the cooldown guard.
const (
	actionResendVerification = "resend-verification"
	actionPasswordReset      = "request-password-reset"
)

// CooldownGuard is an in-process, per-action rate limiter keyed by email.
// Entries live only in memory and are lost on restart; the cooldown is a
// soft anti-abuse measure, not a security boundary. Stale entries are
// purged opportunistically on each check.
type CooldownGuard struct {
	mu      sync.Mutex
	actions map[string]map[Identity]time.Time
	now     func() time.Time
}

func NewCooldownGuard() *CooldownGuard {
	return &CooldownGuard{
		actions: make(map[string]map[Identity]time.Time),
		now:     time.Now,
	}
}

// Check returns ErrCooldownActive if the identity was accepted for the
// action less than window ago, without refreshing the timestamp. Otherwise
// it records now and returns nil. Two nil results for the same
// (action, identity) pair are always at least window apart.
func (g *CooldownGuard) Check(action string, id Identity, window time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	entries := g.actions[action]
	if entries == nil {
		entries = make(map[Identity]time.Time)
		g.actions[action] = entries
	}
	for key, accepted := range entries {
		if now.Sub(accepted) > window {
			delete(entries, key)
		}
	}

	if accepted, ok := entries[id]; ok && now.Sub(accepted) < window {
		return ErrCooldownActive
	}
	entries[id] = now
	return nil
}
