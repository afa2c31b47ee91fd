package placement

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmootherFirstUpdateAdoptsSample(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0.8, 0.5)
	got := s.Update(1.72, time.Now())
	assert.Equal(t, 1.72, got)

	v, ok := s.Value()
	assert.True(t, ok)
	assert.Equal(t, 1.72, v)
}

func TestSmootherConvergesWithinFiveTau(t *testing.T) {
	t.Parallel()

	const tau = 0.8
	s := NewSmoother(tau, 100) // step limit large enough to never clamp

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Update(0, now)

	// Constant input at 10, sampled every 50ms of simulated time.
	const target = 10.0
	step := 50 * time.Millisecond
	deadline := now.Add(time.Duration(5 * tau * float64(time.Second)))
	var got float64
	for now.Before(deadline) {
		now = now.Add(step)
		got = s.Update(target, now)
	}

	// Converged to within 1% of the constant input.
	assert.InDelta(t, target, got, target*0.01)
}

func TestSmootherClampsSingleJump(t *testing.T) {
	t.Parallel()

	const maxStep = 0.5
	s := NewSmoother(0.8, maxStep)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := s.Update(2.0, now)

	// One wildly off sample moves the output by at most maxStep.
	got := s.Update(50.0, now.Add(10*time.Second))
	require.LessOrEqual(t, math.Abs(got-base), maxStep+1e-12)

	// Same for a downward outlier.
	base = got
	got = s.Update(-50.0, now.Add(20*time.Second))
	assert.LessOrEqual(t, math.Abs(got-base), maxStep+1e-12)
}

func TestSmootherTracksGenuineChangeThroughClamp(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0.5, 0.5)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Update(0, now)

	// A persistent new level is reached despite per-update clamping.
	got := 0.0
	for i := 0; i < 200; i++ {
		now = now.Add(100 * time.Millisecond)
		got = s.Update(5.0, now)
	}
	assert.InDelta(t, 5.0, got, 0.05)
}

func TestSmootherZeroDtDoesNotStall(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0.8, 10)
	now := time.Now()
	s.Update(0, now)

	// Second sample at the identical timestamp still makes progress.
	got := s.Update(1.0, now)
	assert.Greater(t, got, 0.0)
}

func TestSmootherReset(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0.8, 0.5)
	s.Update(3.0, time.Now())
	s.Reset()

	_, ok := s.Value()
	assert.False(t, ok)

	// After reset the next update adopts the sample again.
	got := s.Update(-7.0, time.Now())
	assert.Equal(t, -7.0, got)
}
