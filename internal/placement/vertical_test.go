package placement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yutaka0114/telepose/internal/config"
)

// fakeProbe returns queued probe results in order, then repeats the
// last entry.
type fakeProbe struct {
	hits  []float64
	oks   []bool
	calls int
}

func (p *fakeProbe) Probe(x, startY, z, maxDistance float64) (float64, bool) {
	i := p.calls
	if i >= len(p.hits) {
		i = len(p.hits) - 1
	}
	p.calls++
	if i < 0 {
		return 0, false
	}
	return p.hits[i], p.oks[i]
}

func baseCtx() VerticalContext {
	return VerticalContext{CandidateX: 3, CandidateZ: 4, ObserverY: 1.6, SnapshotY: 1.5}
}

func TestVerticalFixedMode(t *testing.T) {
	t.Parallel()

	r := NewVerticalResolver(VerticalConfig{
		Mode: config.VerticalFixed, FixedHeightM: 0.4, HeightOffsetM: 0.1,
	}, nil, NewSmoother(0.8, 0.5))

	assert.InDelta(t, 0.5, r.ResolveY(baseCtx(), time.Now()), 1e-12)
}

func TestVerticalLiveAndSnapshotModes(t *testing.T) {
	t.Parallel()

	live := NewVerticalResolver(VerticalConfig{Mode: config.VerticalLive}, nil, NewSmoother(0.8, 0.5))
	assert.Equal(t, 1.6, live.ResolveY(baseCtx(), time.Now()))

	snap := NewVerticalResolver(VerticalConfig{Mode: config.VerticalSnapshot}, nil, NewSmoother(0.8, 0.5))
	assert.Equal(t, 1.5, snap.ResolveY(baseCtx(), time.Now()))
}

func TestVerticalGroundModeSmoothsProbeHits(t *testing.T) {
	t.Parallel()

	probe := &fakeProbe{hits: []float64{0.2, 0.2, 0.2}, oks: []bool{true, true, true}}
	r := NewVerticalResolver(VerticalConfig{
		Mode: config.VerticalGround, ProbeRayHeightM: 3, ProbeMaxDistanceM: 10,
	}, probe, NewSmoother(0.8, 0.5))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := r.ResolveY(baseCtx(), now)
	// First probe hit is adopted directly by the smoother.
	assert.InDelta(t, 0.2, got, 1e-12)
}

func TestVerticalGroundModeFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("no prior hit falls back to snapshot height", func(t *testing.T) {
		t.Parallel()
		probe := &fakeProbe{hits: []float64{0}, oks: []bool{false}}
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalGround, ProbeRayHeightM: 3, ProbeMaxDistanceM: 10,
		}, probe, NewSmoother(0.8, 0.5))

		assert.Equal(t, 1.5, r.ResolveY(baseCtx(), time.Now()))
	})

	t.Run("failed probe falls back to last smoothed value", func(t *testing.T) {
		t.Parallel()
		probe := &fakeProbe{hits: []float64{0.3, 0}, oks: []bool{true, false}}
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalGround, ProbeRayHeightM: 3, ProbeMaxDistanceM: 10,
		}, probe, NewSmoother(0.8, 0.5))

		now := time.Now()
		first := r.ResolveY(baseCtx(), now)
		second := r.ResolveY(baseCtx(), now.Add(time.Second))
		assert.Equal(t, first, second)
	})

	t.Run("nil probe behaves as a failed probe", func(t *testing.T) {
		t.Parallel()
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalGround, ProbeRayHeightM: 3, ProbeMaxDistanceM: 10,
		}, nil, NewSmoother(0.8, 0.5))

		assert.Equal(t, 1.5, r.ResolveY(baseCtx(), time.Now()))
	})
}

func TestVerticalAnchorCorrection(t *testing.T) {
	t.Parallel()

	t.Run("applied to non-ground modes when enabled", func(t *testing.T) {
		t.Parallel()
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalSnapshot, AnchorCorrection: true,
		}, nil, NewSmoother(0.8, 0.5))
		r.SetAnchorCorrection(-0.12)

		assert.InDelta(t, 1.5-0.12, r.ResolveY(baseCtx(), time.Now()), 1e-12)
	})

	t.Run("never applied to the ground mode", func(t *testing.T) {
		t.Parallel()
		probe := &fakeProbe{hits: []float64{0.2}, oks: []bool{true}}
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalGround, AnchorCorrection: true,
			ProbeRayHeightM: 3, ProbeMaxDistanceM: 10,
		}, probe, NewSmoother(0.8, 0.5))
		r.SetAnchorCorrection(-0.12)

		assert.InDelta(t, 0.2, r.ResolveY(baseCtx(), time.Now()), 1e-12)
	})

	t.Run("not applied until the distance is cached", func(t *testing.T) {
		t.Parallel()
		r := NewVerticalResolver(VerticalConfig{
			Mode: config.VerticalSnapshot, AnchorCorrection: true,
		}, nil, NewSmoother(0.8, 0.5))

		assert.Equal(t, 1.5, r.ResolveY(baseCtx(), time.Now()))
	})
}
