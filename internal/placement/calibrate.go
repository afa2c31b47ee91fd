package placement

import (
	"sync"

	"github.com/yutaka0114/telepose/internal/config"
	"github.com/yutaka0114/telepose/internal/geo"
	"github.com/yutaka0114/telepose/internal/monitoring"
	"github.com/yutaka0114/telepose/internal/sample"
)

// ObserverPose is the local-frame pose of the observer at tick time,
// plus the latest compass reading when one is available.
type ObserverPose struct {
	Position geo.Vec3
	YawDeg   float64 // local-frame yaw of the observer's forward direction

	// CompassHeadingDeg is the observer's true heading reading, consumed
	// only under the HeadingCompass calibration policy.
	CompassHeadingDeg float64
}

// CalibrationFrame maps the reference geodetic point and heading onto
// the local frame. It is created once per session and immutable until
// an explicit session reset.
type CalibrationFrame struct {
	OriginLat           float64
	OriginLon           float64
	OriginLocalPosition geo.Vec3
	RotationOffsetDeg   float64
}

// Calibrator captures the calibration frame from the first valid
// reference sample. Calibrate is safe to retry every tick: it stays
// pending until a valid sample arrives and is a no-op once a frame is
// set, so concurrent attempts can never regress a set frame.
type Calibrator struct {
	headingSource string

	mu    sync.Mutex
	frame *CalibrationFrame
}

// NewCalibrator returns a Calibrator using the given heading-source
// policy (config.HeadingCompass or config.HeadingForward). The policy
// is an explicit configuration choice, never inferred.
func NewCalibrator(headingSource string) *Calibrator {
	return &Calibrator{headingSource: headingSource}
}

// Calibrate attempts to establish the calibration frame from the
// observer's current pose and the reference sample. It returns the
// frame and true on success, or nil and false while pending. A second
// call with the frame already set returns the existing frame unchanged.
func (c *Calibrator) Calibrate(observer ObserverPose, ref sample.GeoSample) (*CalibrationFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame != nil {
		return c.frame, true
	}
	if !ref.Valid() {
		return nil, false
	}

	// The rotation offset is the local-frame direction of true north:
	// local yaw at calibration minus the reference heading. Under the
	// forward policy the observer's facing itself is the reference, so
	// the reference heading is zero and the mapping is self-consistent
	// rather than geodetically true.
	refHeading := 0.0
	if c.headingSource == config.HeadingCompass {
		refHeading = observer.CompassHeadingDeg
	}

	c.frame = &CalibrationFrame{
		OriginLat:           ref.Lat,
		OriginLon:           ref.Lon,
		OriginLocalPosition: observer.Position,
		RotationOffsetDeg:   geo.NormalizeDeg(observer.YawDeg - refHeading),
	}
	monitoring.Logf("calibrated: origin=(%.6f, %.6f) rotation_offset=%.1f deg (%s)",
		c.frame.OriginLat, c.frame.OriginLon, c.frame.RotationOffsetDeg, c.headingSource)
	return c.frame, true
}

// Frame returns the calibration frame if one has been set.
func (c *Calibrator) Frame() (*CalibrationFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.frame != nil
}

// Reset discards the frame for a new session.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = nil
}
