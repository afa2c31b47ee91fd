package placement

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yutaka0114/telepose/internal/config"
	"github.com/yutaka0114/telepose/internal/geo"
	"github.com/yutaka0114/telepose/internal/sample"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		MaxDistanceM:         30,
		HeadingSource:        config.HeadingForward,
		PositionBlend:        1.0, // exact assertions: candidate is adopted fully
		RotationBlend:        1.0,
		StandoffDistanceM:    2.0,
		DegradedUseSampleYaw: true,
		StaleAfter:           10 * time.Second,
		Vertical:             VerticalConfig{Mode: config.VerticalSnapshot},
		HeightTauSecs:        0.8,
		HeightMaxStepM:       0.5,
	}
}

func liveInput(s sample.GeoSample, obs ObserverPose, now time.Time) TickInput {
	return TickInput{
		Snapshot:     sample.Snapshot{Sample: s, Source: sample.SourcePoll, ReceivedAt: now},
		HasSample:    true,
		EverReceived: true,
		Observer:     obs,
	}
}

func TestEngineDegradedForeverWithoutData(t *testing.T) {
	t.Parallel()

	e := NewEngine(testEngineConfig(), nil)
	obs := ObserverPose{Position: geo.Vec3{X: 10, Y: 1.5, Z: 20}, YawDeg: 90}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		now = now.Add(50 * time.Millisecond)
		target := e.Tick(now, TickInput{Observer: obs})

		require.True(t, target.Degraded)
		// Standoff of 2 m ahead of an observer facing +X (yaw 90).
		assert.InDelta(t, 12.0, target.Position.X, 1e-9)
		assert.InDelta(t, 20.0, target.Position.Z, 1e-9)
		assert.InDelta(t, 1.5, target.Position.Y, 1e-9)
		assert.Equal(t, 90.0, target.YawDeg)
		// The coordinate origin is never used.
		assert.NotEqual(t, geo.Vec3{}, target.Position)
	}
	assert.Equal(t, uint64(100), e.Ticks())
}

func TestEngineAlwaysVisibleForcesDegraded(t *testing.T) {
	t.Parallel()

	cfg := testEngineConfig()
	cfg.AlwaysVisible = true
	e := NewEngine(cfg, nil)

	obs := ObserverPose{Position: geo.Vec3{Y: 1.5}, YawDeg: 0}
	now := time.Now()
	s := sample.GeoSample{Lat: 35, Lon: 135, YawDeg: 45}

	target := e.Tick(now, liveInput(s, obs, now))
	require.True(t, target.Degraded)
	// Rotation comes from the live sample's yaw when configured.
	assert.Equal(t, 45.0, target.YawDeg)
	// Never calibrates on this path.
	_, ok := e.Calibrated()
	assert.False(t, ok)
}

func TestEngineCalibratedPipeline(t *testing.T) {
	t.Parallel()

	e := NewEngine(testEngineConfig(), nil)
	obs := ObserverPose{Position: geo.Vec3{X: 5, Y: 1.5, Z: -3}, YawDeg: 0}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// First live sample calibrates the origin at (35, 135) with zero
	// rotation offset (forward policy, observer yaw 0).
	origin := sample.GeoSample{Lat: 35.0000, Lon: 135.0000}
	target := e.Tick(now, liveInput(origin, obs, now))
	frame, ok := e.Calibrated()
	require.True(t, ok)
	assert.InDelta(t, 0.0, frame.RotationOffsetDeg, 1e-12)
	// The origin sample itself places the proxy at the anchor.
	assert.InDelta(t, obs.Position.X, target.Position.X, 1e-9)
	assert.InDelta(t, obs.Position.Z, target.Position.Z, 1e-9)
	assert.False(t, target.Degraded)

	// A target 0.0009 deg north projects to ~100.2 m and clamps to 30 m
	// on the same bearing (due north → +Z).
	now = now.Add(time.Second)
	north := sample.GeoSample{Lat: 35.0009, Lon: 135.0000, YawDeg: 10}
	target = e.Tick(now, liveInput(north, obs, now))

	assert.InDelta(t, obs.Position.X, target.Position.X, 1e-6)
	assert.InDelta(t, obs.Position.Z+30, target.Position.Z, 1e-6)
	// Snapshot vertical mode: the observer height captured at calibration.
	assert.InDelta(t, 1.5, target.Position.Y, 1e-9)
	assert.Equal(t, 10.0, target.YawDeg)
}

func TestEngineOutputNeverExceedsMaxDistance(t *testing.T) {
	t.Parallel()

	e := NewEngine(testEngineConfig(), nil)
	obs := ObserverPose{Position: geo.Vec3{Y: 1.6}}
	now := time.Now()

	e.Tick(now, liveInput(sample.GeoSample{Lat: 35, Lon: 135}, obs, now))

	far := []sample.GeoSample{
		{Lat: 35.01, Lon: 135},
		{Lat: 35, Lon: 135.02},
		{Lat: 34.9, Lon: 134.9},
	}
	for _, s := range far {
		now = now.Add(time.Second)
		target := e.Tick(now, liveInput(s, obs, now))
		assert.LessOrEqual(t, target.Position.Sub(obs.Position).HorizontalMag(), 30.0+1e-6)
	}
}

func TestEngineGeodeticYawReexpressedThroughCalibration(t *testing.T) {
	t.Parallel()

	cfg := testEngineConfig()
	cfg.GeodeticYaw = true
	cfg.YawOffsetDeg = 5
	e := NewEngine(cfg, nil)

	// Forward policy with observer yaw 30 gives rotation offset 30.
	obs := ObserverPose{YawDeg: 30}
	now := time.Now()
	target := e.Tick(now, liveInput(sample.GeoSample{Lat: 35, Lon: 135, YawDeg: 100}, obs, now))

	assert.InDelta(t, 135.0, target.YawDeg, 1e-9) // 100 + 5 + 30
}

func TestEngineHoldsPoseOnSentinelAndStale(t *testing.T) {
	t.Parallel()

	e := NewEngine(testEngineConfig(), nil)
	obs := ObserverPose{Position: geo.Vec3{Y: 1.5}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	held := e.Tick(now, liveInput(sample.GeoSample{Lat: 35.0002, Lon: 135.0001}, obs, now))

	t.Run("sentinel sample holds the previous target", func(t *testing.T) {
		in := liveInput(sample.GeoSample{Lat: 0, Lon: 0}, obs, now)
		got := e.Tick(now.Add(time.Second), in)
		if diff := cmp.Diff(held, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("target pose changed (-want +got):\n%s", diff)
		}
	})

	t.Run("stale sample holds the previous target", func(t *testing.T) {
		in := liveInput(sample.GeoSample{Lat: 35.0005, Lon: 135.0005}, obs, now)
		// Received long ago relative to the tick time.
		got := e.Tick(now.Add(time.Minute), in)
		if diff := cmp.Diff(held, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("target pose changed (-want +got):\n%s", diff)
		}
	})
}

func TestEngineBlendsTowardCandidate(t *testing.T) {
	t.Parallel()

	cfg := testEngineConfig()
	cfg.PositionBlend = 0.5
	cfg.RotationBlend = 0.5
	e := NewEngine(cfg, nil)

	obs := ObserverPose{Position: geo.Vec3{Y: 1.5}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Calibrate at the origin; the first target sits at the anchor.
	first := e.Tick(now, liveInput(sample.GeoSample{Lat: 35, Lon: 135}, obs, now))
	require.InDelta(t, 0.0, first.Position.Z, 1e-9)

	// Candidate jumps ~11 m north; the displayed pose moves only half
	// way there this tick.
	now = now.Add(time.Second)
	second := e.Tick(now, liveInput(sample.GeoSample{Lat: 35.0001, Lon: 135}, obs, now))
	assert.InDelta(t, 11.132/2, second.Position.Z, 0.01)

	// And half of the remainder the next tick.
	now = now.Add(time.Second)
	third := e.Tick(now, liveInput(sample.GeoSample{Lat: 35.0001, Lon: 135}, obs, now))
	assert.InDelta(t, 11.132*0.75, third.Position.Z, 0.01)
}

func TestEngineDegradedWhilePendingToggle(t *testing.T) {
	t.Parallel()

	cfg := testEngineConfig()
	cfg.DegradedWhilePending = true
	e := NewEngine(cfg, nil)

	obs := ObserverPose{Position: geo.Vec3{X: 1, Y: 1.5}, YawDeg: 0}
	now := time.Now()

	// Data has been seen, but the only current sample is the sentinel:
	// calibration stays pending and the toggle selects the degraded
	// placement instead of holding.
	in := liveInput(sample.GeoSample{Lat: 0, Lon: 0}, obs, now)
	target := e.Tick(now, in)
	assert.True(t, target.Degraded)
	assert.InDelta(t, 2.0, target.Position.Z-0, 1e-9)
}

func TestEngineResetStartsNewSession(t *testing.T) {
	t.Parallel()

	e := NewEngine(testEngineConfig(), nil)
	obs := ObserverPose{Position: geo.Vec3{Y: 1.5}}
	now := time.Now()

	e.Tick(now, liveInput(sample.GeoSample{Lat: 35, Lon: 135}, obs, now))
	_, ok := e.Calibrated()
	require.True(t, ok)
	oldSession := e.SessionID()

	e.Reset()

	_, ok = e.Calibrated()
	assert.False(t, ok)
	_, ok = e.LastTarget()
	assert.False(t, ok)
	assert.NotEqual(t, oldSession, e.SessionID())
	assert.Equal(t, uint64(0), e.Ticks())
}
