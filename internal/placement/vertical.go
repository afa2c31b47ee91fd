package placement

import (
	"time"

	"github.com/yutaka0114/telepose/internal/config"
)

// SurfaceProbe is the external collaborator consulted by the ground
// vertical mode. Probe casts downward from (x, startY, z) and returns
// the surface height under the candidate position, reporting false
// when nothing is hit within maxDistance.
type SurfaceProbe interface {
	Probe(x, startY, z, maxDistance float64) (float64, bool)
}

// VerticalConfig holds the vertical-resolution parameters.
type VerticalConfig struct {
	Mode              string // config.VerticalFixed/Live/Snapshot/Ground
	FixedHeightM      float64
	HeightOffsetM     float64
	ProbeRayHeightM   float64
	ProbeMaxDistanceM float64
	AnchorCorrection  bool
}

// VerticalContext carries the per-tick inputs for height resolution.
type VerticalContext struct {
	// CandidateX/Z is the horizontal local position being placed; the
	// ground mode probes downward above it.
	CandidateX float64
	CandidateZ float64

	// ObserverY is the observer's current vertical position.
	ObserverY float64

	// SnapshotY is the observer's vertical position captured at
	// calibration time; callers pass ObserverY before calibration.
	SnapshotY float64
}

// VerticalResolver selects the local vertical coordinate under the
// configured mode. The ground mode feeds probe hits through a Smoother
// so a single misdetected surface point cannot jerk the height.
type VerticalResolver struct {
	cfg      VerticalConfig
	probe    SurfaceProbe
	smoother *Smoother

	anchorToRefHeight float64
	anchorSet         bool
}

// NewVerticalResolver returns a resolver with the given configuration,
// probe collaborator (may be nil for non-ground modes), and height
// smoother.
func NewVerticalResolver(cfg VerticalConfig, probe SurfaceProbe, smoother *Smoother) *VerticalResolver {
	return &VerticalResolver{cfg: cfg, probe: probe, smoother: smoother}
}

// SetAnchorCorrection caches the anchor-feature to reference-height
// distance, e.g. aligning an articulated figure's head to eye level.
// Applied to non-ground modes only, and only when enabled by config.
func (r *VerticalResolver) SetAnchorCorrection(distance float64) {
	r.anchorToRefHeight = distance
	r.anchorSet = true
}

// ResolveY returns the vertical coordinate for the candidate position.
func (r *VerticalResolver) ResolveY(ctx VerticalContext, now time.Time) float64 {
	var y float64
	switch r.cfg.Mode {
	case config.VerticalFixed:
		y = r.cfg.FixedHeightM
	case config.VerticalLive:
		y = ctx.ObserverY
	case config.VerticalGround:
		y = r.resolveGround(ctx, now)
	default: // config.VerticalSnapshot
		y = ctx.SnapshotY
	}

	y += r.cfg.HeightOffsetM

	if r.cfg.AnchorCorrection && r.anchorSet && r.cfg.Mode != config.VerticalGround {
		y += r.anchorToRefHeight
	}
	return y
}

func (r *VerticalResolver) resolveGround(ctx VerticalContext, now time.Time) float64 {
	startY := ctx.SnapshotY + r.cfg.ProbeRayHeightM
	if r.probe != nil {
		if hit, ok := r.probe.Probe(ctx.CandidateX, startY, ctx.CandidateZ, r.cfg.ProbeMaxDistanceM); ok {
			return r.smoother.Update(hit, now)
		}
	}
	// Probe failed: last successfully smoothed value if one exists,
	// else the snapshot reference height.
	if v, ok := r.smoother.Value(); ok {
		return v
	}
	return ctx.SnapshotY
}

// Reset clears the smoothed height for a new session.
func (r *VerticalResolver) Reset() {
	r.smoother.Reset()
	r.anchorSet = false
	r.anchorToRefHeight = 0
}
