package placement

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yutaka0114/telepose/internal/config"
	"github.com/yutaka0114/telepose/internal/geo"
	"github.com/yutaka0114/telepose/internal/sample"
)

// TargetPose is the pose the proxy representation should move toward
// this tick. Ephemeral: recomputed every tick, never persisted.
type TargetPose struct {
	Position geo.Vec3
	YawDeg   float64
	Degraded bool
}

// EngineConfig holds the placement parameters.
type EngineConfig struct {
	MaxDistanceM  float64
	YawOffsetDeg  float64
	GeodeticYaw   bool // sample yaw is true-north relative
	HeadingSource string

	PositionBlend float64 // per-tick exponential factor (0, 1]
	RotationBlend float64 // per-tick exponential factor (0, 1]

	AlwaysVisible        bool
	StandoffDistanceM    float64
	DegradedWhilePending bool
	DegradedUseSampleYaw bool

	StaleAfter time.Duration

	Vertical       VerticalConfig
	HeightTauSecs  float64
	HeightMaxStepM float64
}

// EngineConfigFromTuning builds an EngineConfig from a loaded
// TuningConfig. Use this in binaries where the TuningConfig is already
// loaded.
func EngineConfigFromTuning(cfg *config.TuningConfig) EngineConfig {
	return EngineConfig{
		MaxDistanceM:         cfg.GetMaxDistanceM(),
		YawOffsetDeg:         cfg.GetYawOffsetDeg(),
		GeodeticYaw:          cfg.GetGeodeticYaw(),
		HeadingSource:        cfg.GetHeadingSource(),
		PositionBlend:        cfg.GetPositionBlend(),
		RotationBlend:        cfg.GetRotationBlend(),
		AlwaysVisible:        cfg.GetAlwaysVisible(),
		StandoffDistanceM:    cfg.GetStandoffDistanceM(),
		DegradedWhilePending: cfg.GetDegradedWhilePending(),
		DegradedUseSampleYaw: cfg.GetDegradedUseSampleYaw(),
		StaleAfter:           cfg.GetStaleAfter(),
		Vertical: VerticalConfig{
			Mode:              cfg.GetVerticalMode(),
			FixedHeightM:      cfg.GetFixedHeightM(),
			HeightOffsetM:     cfg.GetHeightOffsetM(),
			ProbeRayHeightM:   cfg.GetProbeRayHeightM(),
			ProbeMaxDistanceM: cfg.GetProbeMaxDistanceM(),
			AnchorCorrection:  cfg.GetAnchorCorrection(),
		},
		HeightTauSecs:  cfg.GetHeightTauSecs(),
		HeightMaxStepM: cfg.GetHeightMaxStepM(),
	}
}

// TickInput is the complete per-tick input snapshot.
type TickInput struct {
	Snapshot     sample.Snapshot
	HasSample    bool
	EverReceived bool
	Observer     ObserverPose
}

// Engine orchestrates calibration, projection, clamping, height
// resolution, and blending into one target pose per tick. All failure
// modes degrade to "keep last known good" or an explicit fallback; Tick
// never errors.
type Engine struct {
	cfg        EngineConfig
	calibrator *Calibrator
	resolver   *VerticalResolver
	sessionID  string

	mu      sync.Mutex
	last    TargetPose
	hasLast bool
	ticks   uint64
}

// NewEngine returns an Engine with a fresh session. probe may be nil
// when the vertical mode never consults a surface.
func NewEngine(cfg EngineConfig, probe SurfaceProbe) *Engine {
	smoother := NewSmoother(cfg.HeightTauSecs, cfg.HeightMaxStepM)
	return &Engine{
		cfg:        cfg,
		calibrator: NewCalibrator(cfg.HeadingSource),
		resolver:   NewVerticalResolver(cfg.Vertical, probe, smoother),
		sessionID:  uuid.NewString(),
	}
}

// SessionID identifies this engine session.
func (e *Engine) SessionID() string { return e.sessionID }

// Calibrated reports whether the calibration frame is set, and returns
// it when so.
func (e *Engine) Calibrated() (*CalibrationFrame, bool) {
	return e.calibrator.Frame()
}

// Resolver exposes the vertical resolver for anchor-correction setup.
func (e *Engine) Resolver() *VerticalResolver { return e.resolver }

// Reset starts a new session: calibration frame, filter memory, and
// blending state are discarded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calibrator.Reset()
	e.resolver.Reset()
	e.hasLast = false
	e.last = TargetPose{}
	e.ticks = 0
	e.sessionID = uuid.NewString()
}

// Ticks returns the number of ticks processed this session.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

// LastTarget returns the most recent target pose, if any tick has run.
func (e *Engine) LastTarget() (TargetPose, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Tick produces the target pose for this tick. Priority order: forced
// or no-data degraded placement, calibration attempt with hold while
// pending, then the live project → align → clamp → resolve pipeline,
// finished by exponential blending toward the candidate.
func (e *Engine) Tick(now time.Time, in TickInput) TargetPose {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++

	live := in.HasSample && in.Snapshot.Sample.Valid() &&
		in.Snapshot.Fresh(now, e.cfg.StaleAfter)

	if e.cfg.AlwaysVisible || !in.EverReceived {
		return e.blendTo(e.degradedPlacement(now, in, live))
	}

	frame, calibrated := e.calibrator.Frame()
	if !calibrated && live {
		frame, calibrated = e.calibrator.Calibrate(in.Observer, in.Snapshot.Sample)
	}
	if !calibrated {
		if e.cfg.DegradedWhilePending || !e.hasLast {
			return e.blendTo(e.degradedPlacement(now, in, live))
		}
		return e.hold(now, in)
	}

	if !live {
		// Previous sample stays authoritative until explicitly
		// invalidated; a sentinel or stale reading never snaps the
		// placement anywhere.
		if !e.hasLast {
			return e.blendTo(e.degradedPlacement(now, in, live))
		}
		return e.hold(now, in)
	}

	candidate := e.composeCandidate(now, in, frame)
	return e.blendTo(candidate)
}

// composeCandidate runs the calibrated pipeline for a live sample.
func (e *Engine) composeCandidate(now time.Time, in TickInput, frame *CalibrationFrame) TargetPose {
	s := in.Snapshot.Sample

	proj := geo.Projector{OriginLat: frame.OriginLat, OriginLon: frame.OriginLon}
	east, north := proj.Project(s.Lat, s.Lon)
	x, z := geo.AlignToLocal(east, north, frame.RotationOffsetDeg)
	x, z = geo.ClampRange(x, z, e.cfg.MaxDistanceM)

	candX := frame.OriginLocalPosition.X + x
	candZ := frame.OriginLocalPosition.Z + z
	y := e.resolver.ResolveY(VerticalContext{
		CandidateX: candX,
		CandidateZ: candZ,
		ObserverY:  in.Observer.Position.Y,
		SnapshotY:  frame.OriginLocalPosition.Y,
	}, now)

	yaw := s.YawDeg + e.cfg.YawOffsetDeg
	if e.cfg.GeodeticYaw {
		// Re-express a true-north-relative yaw through the calibration
		// rotation so it lands in the local frame.
		yaw += frame.RotationOffsetDeg
	}

	return TargetPose{
		Position: geo.Vec3{X: candX, Y: y, Z: candZ},
		YawDeg:   geo.NormalizeDeg(yaw),
	}
}

// degradedPlacement places the proxy a fixed standoff ahead of the
// observer. It never blocks on calibration and never uses the
// coordinate origin.
func (e *Engine) degradedPlacement(now time.Time, in TickInput, live bool) TargetPose {
	fx, fz := geo.OffsetFromHeadingDeg(in.Observer.YawDeg)
	pos := in.Observer.Position.Add(geo.Vec3{X: fx, Z: fz}.Scale(e.cfg.StandoffDistanceM))

	snapshotY := in.Observer.Position.Y
	if frame, ok := e.calibrator.Frame(); ok {
		snapshotY = frame.OriginLocalPosition.Y
	}
	pos.Y = e.resolver.ResolveY(VerticalContext{
		CandidateX: pos.X,
		CandidateZ: pos.Z,
		ObserverY:  in.Observer.Position.Y,
		SnapshotY:  snapshotY,
	}, now)

	yaw := in.Observer.YawDeg
	if live && e.cfg.DegradedUseSampleYaw {
		yaw = in.Snapshot.Sample.YawDeg + e.cfg.YawOffsetDeg
	}

	return TargetPose{Position: pos, YawDeg: geo.NormalizeDeg(yaw), Degraded: true}
}

// hold keeps the previous target pose unchanged while still ticking the
// height filter so it keeps tracking across the gap.
func (e *Engine) hold(now time.Time, in TickInput) TargetPose {
	snapshotY := in.Observer.Position.Y
	if frame, ok := e.calibrator.Frame(); ok {
		snapshotY = frame.OriginLocalPosition.Y
	}
	e.resolver.ResolveY(VerticalContext{
		CandidateX: e.last.Position.X,
		CandidateZ: e.last.Position.Z,
		ObserverY:  in.Observer.Position.Y,
		SnapshotY:  snapshotY,
	}, now)
	return e.last
}

// blendTo damps the displayed pose toward the candidate with
// independent per-tick factors for position and rotation. This is a
// critically-damped approach, not a physics simulation, and is distinct
// from the scalar height smoothing.
func (e *Engine) blendTo(candidate TargetPose) TargetPose {
	if !e.hasLast {
		e.last = candidate
		e.hasLast = true
		return e.last
	}

	e.last = TargetPose{
		Position: geo.Lerp(e.last.Position, candidate.Position, e.cfg.PositionBlend),
		YawDeg:   geo.LerpAngleDeg(e.last.YawDeg, candidate.YawDeg, e.cfg.RotationBlend),
		Degraded: candidate.Degraded,
	}
	return e.last
}
