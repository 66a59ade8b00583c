package dispatch

import (
	"strconv"
	"time"

	"github.com/tracklink/tracklink/internal/attribution"
	"github.com/tracklink/tracklink/internal/model"
)

// Qualified cooldown bounds.
const (
	DefaultQualifiedCooldown = 6 * time.Hour
	MinQualifiedCooldown     = time.Minute
	MaxQualifiedCooldown     = 7 * 24 * time.Hour

	cooldownKeyPrefix = "sl-qualified:"
)

// QualifiedCooldown resolves the per-release cooldown override, clamped to
// [MinQualifiedCooldown, MaxQualifiedCooldown].
func QualifiedCooldown(cfg *model.ReleaseConfig) time.Duration {
	d := DefaultQualifiedCooldown
	if cfg != nil && cfg.Tracking.QualifiedCooldownMs != nil {
		d = time.Duration(*cfg.Tracking.QualifiedCooldownMs) * time.Millisecond
	}
	if d < MinQualifiedCooldown {
		return MinQualifiedCooldown
	}
	if d > MaxQualifiedCooldown {
		return MaxQualifiedCooldown
	}
	return d
}

// CooldownGate rate-limits the Qualified signal to once per window per page
// path, persisted in durable client storage.
type CooldownGate struct {
	store  attribution.Store
	clock  Clock
	window time.Duration
}

// NewCooldownGate creates a gate over the given store.
func NewCooldownGate(store attribution.Store, clock Clock, window time.Duration) *CooldownGate {
	if clock == nil {
		clock = NewClock()
	}
	return &CooldownGate{store: store, clock: clock, window: window}
}

// Allow reports whether a Qualified event may fire for the path, and records
// the attempt. Storage failures fail open: a duplicated heuristic signal is
// preferable to a dropped one.
func (g *CooldownGate) Allow(path string) bool {
	now := g.clock.Now().UnixMilli()
	if g.store == nil {
		return true
	}

	key := cooldownKeyPrefix + path
	previousRaw, err := g.store.Get(key)
	if err != nil {
		return true
	}

	if previous, parseErr := strconv.ParseInt(previousRaw, 10, 64); parseErr == nil && previous > 0 {
		if now-previous < g.window.Milliseconds() {
			return false
		}
	}

	_ = g.store.Set(key, strconv.FormatInt(now, 10))
	return true
}
