// Package cost implements the per-session cost model: accumulation,
// linear decay toward zero at a per-second rate, and soft/hard-limit concurrency
// interpolation (spec.md §4.3), ported from the original's
// Session.bump_cost / Session.recalc_concurrency.
package cost

import (
	"math"
	"sync"
	"time"
)

// Limits are the class-level cost parameters, built by the manager
// from configuration when it is constructed (session.New).
// They are shared, reconfigurable settings — not process-wide mutable
// singletons (§9 design note on "class attributes mutated at
// runtime") — held once on the manager and read by every session.
type Limits struct {
	SoftLimit         float64
	HardLimit         float64
	InitialConcurrent int
	BandwidthPerByte  float64
	RequestSleep      time.Duration
	RequestTimeout    time.Duration
}

// Tracker accumulates and decays a single session's cost and derives
// its current concurrency allowance.
type Tracker struct {
	mu sync.Mutex

	limits Limits

	cost         float64
	decayPerSec  float64
	lastDecay    time.Time
}

// NewTracker constructs a Tracker with starting cost (ElectrumX
// sessions start at cost=5.0; LocalRPC sessions start at 0).
func NewTracker(limits Limits, startCost float64, now time.Time) *Tracker {
	return &Tracker{
		limits:      limits,
		cost:        startCost,
		decayPerSec: limits.HardLimit / 10000,
		lastDecay:   now,
	}
}

// Bump adds delta to cost, applying decay for elapsed time first.
func (t *Tracker) Bump(delta float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayLocked(now)
	t.cost += delta
	if t.cost < 0 {
		t.cost = 0
	}
}

// BumpBandwidth adds BandwidthPerByte * bytes to cost.
func (t *Tracker) BumpBandwidth(bytes int, now time.Time) {
	t.Bump(t.limits.BandwidthPerByte*float64(bytes), now)
}

// Cost returns the current decayed cost.
func (t *Tracker) Cost(now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayLocked(now)
	return t.cost
}

func (t *Tracker) decayLocked(now time.Time) {
	elapsed := now.Sub(t.lastDecay).Seconds()
	if elapsed <= 0 {
		return
	}
	t.cost = math.Max(0, t.cost-t.decayPerSec*elapsed)
	t.lastDecay = now
}

// SetDecayRate updates cost_decay_per_sec, called by the recalc
// supervisor with hard_limit/(10000 + 5*subCount) (§4.3).
func (t *Tracker) SetDecayRate(ratePerSec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decayPerSec = ratePerSec
}

// Concurrency derives max_concurrent from effectiveCost = cost +
// extra_cost(session):
//   - below SoftLimit: InitialConcurrent
//   - between soft and hard: linear interpolation down to 1
//   - at or above HardLimit: 0, signalling the session should be
//     scheduled for disconnect.
func (t *Tracker) Concurrency(extraCost float64, now time.Time) int {
	effective := t.Cost(now) + extraCost
	return concurrency(effective, t.limits)
}

func concurrency(effective float64, limits Limits) int {
	if effective < limits.SoftLimit {
		return limits.InitialConcurrent
	}
	if effective >= limits.HardLimit {
		return 0
	}
	span := limits.HardLimit - limits.SoftLimit
	if span <= 0 {
		return 1
	}
	frac := (effective - limits.SoftLimit) / span
	c := float64(limits.InitialConcurrent) - frac*(float64(limits.InitialConcurrent)-1)
	if c < 1 {
		c = 1
	}
	return int(c)
}
