package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon implements just enough of collaborators.Daemon for these
// tests: embedding the nil interface panics if any other method is
// called, which is the desired failure mode here.
type fakeDaemon struct {
	collaborators.Daemon
	calls atomic.Int64
}

func (f *fakeDaemon) EstimateSmartFee(ctx context.Context, blocks int, mode string) (float64, bool, error) {
	f.calls.Add(1)
	return 0.0001, true, nil
}

// Scenario F / invariant #5 (spec.md §8): N goroutines racing the same
// (blocks, mode) key against the same tip collapse into one daemon call.
func TestEstimatefeeSingleFlight(t *testing.T) {
	daemon := &fakeDaemon{}
	c := newEstimatefeeCache(daemon)

	var tip [32]byte
	tip[0] = 1

	var wg sync.WaitGroup
	results := make([]float64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fr, ok, err := c.EstimateFee(context.Background(), tip, 6, "conservative")
			require.NoError(t, err)
			require.True(t, ok)
			results[i] = fr
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 0.0001, r)
	}
	assert.Equal(t, int64(1), daemon.calls.Load())
}

func TestEstimatefeeCacheMissesOnNewTip(t *testing.T) {
	daemon := &fakeDaemon{}
	c := newEstimatefeeCache(daemon)

	var tipA, tipB [32]byte
	tipA[0], tipB[0] = 1, 2

	_, _, err := c.EstimateFee(context.Background(), tipA, 6, "conservative")
	require.NoError(t, err)
	_, _, err = c.EstimateFee(context.Background(), tipA, 6, "conservative")
	require.NoError(t, err)
	assert.Equal(t, int64(1), daemon.calls.Load(), "same tip should hit cache")

	_, _, err = c.EstimateFee(context.Background(), tipB, 6, "conservative")
	require.NoError(t, err)
	assert.Equal(t, int64(2), daemon.calls.Load(), "new tip should miss cache")
}

func TestEstimatefeeInvalidateForcesRefetch(t *testing.T) {
	daemon := &fakeDaemon{}
	c := newEstimatefeeCache(daemon)
	var tip [32]byte

	_, _, _ = c.EstimateFee(context.Background(), tip, 6, "conservative")
	c.Invalidate()
	_, _, _ = c.EstimateFee(context.Background(), tip, 6, "conservative")

	assert.Equal(t, int64(2), daemon.calls.Load())
}
