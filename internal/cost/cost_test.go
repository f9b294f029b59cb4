package cost

import (
	"testing"
	"time"
)

func baseLimits() Limits {
	return Limits{
		SoftLimit:         1000,
		HardLimit:         10000,
		InitialConcurrent: 10,
		BandwidthPerByte:  0.001,
	}
}

func TestConcurrencyBelowSoftLimit(t *testing.T) {
	now := time.Now()
	tr := NewTracker(baseLimits(), 0, now)
	if got := tr.Concurrency(0, now); got != 10 {
		t.Fatalf("Concurrency below soft = %d, want 10 (initial)", got)
	}
}

func TestConcurrencyAtHardLimit(t *testing.T) {
	now := time.Now()
	tr := NewTracker(baseLimits(), 10000, now)
	if got := tr.Concurrency(0, now); got != 0 {
		t.Fatalf("Concurrency at hard limit = %d, want 0 (scheduled for disconnect)", got)
	}
}

func TestConcurrencyMonotoneNonIncreasing(t *testing.T) {
	// Invariant #8: max_concurrent is monotone-non-increasing in cost
	// within [soft, hard].
	limits := baseLimits()
	now := time.Now()
	prev := limits.InitialConcurrent
	for c := limits.SoftLimit; c <= limits.HardLimit; c += 500 {
		tr := NewTracker(limits, c, now)
		got := tr.Concurrency(0, now)
		if got > prev {
			t.Fatalf("concurrency increased at cost=%.0f: got %d after %d", c, got, prev)
		}
		prev = got
	}
}

func TestBumpDecaysTowardZero(t *testing.T) {
	now := time.Now()
	tr := NewTracker(baseLimits(), 100, now)
	tr.SetDecayRate(10) // 10/sec
	later := now.Add(5 * time.Second)
	if got := tr.Cost(later); got != 50 {
		t.Fatalf("Cost after decay = %v, want 50", got)
	}
}

func TestCostNeverNegative(t *testing.T) {
	now := time.Now()
	tr := NewTracker(baseLimits(), 10, now)
	tr.SetDecayRate(100)
	later := now.Add(10 * time.Second)
	if got := tr.Cost(later); got != 0 {
		t.Fatalf("Cost = %v, want clamped to 0", got)
	}
}

func TestExtraCostPushesIntoInterpolation(t *testing.T) {
	now := time.Now()
	tr := NewTracker(baseLimits(), 0, now)
	// own cost is 0 (below soft), but a heavy group extra_cost pushes
	// effective cost into the interpolation band.
	got := tr.Concurrency(5500, now)
	if got >= 10 || got <= 0 {
		t.Fatalf("Concurrency with extra cost = %d, want interpolated between 1 and 10", got)
	}
}
