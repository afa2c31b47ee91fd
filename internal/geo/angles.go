package geo

import "math"

// NormalizeDeg wraps an angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleDeltaDeg returns the shortest signed angular distance from a to
// b, in (-180, 180].
func AngleDeltaDeg(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

// LerpAngleDeg blends yaw a toward yaw b by t along the shortest arc.
func LerpAngleDeg(a, b, t float64) float64 {
	return NormalizeDeg(a + AngleDeltaDeg(a, b)*t)
}

// HeadingDegFromOffset returns the compass-style heading of a local XZ
// offset: 0 for +Z (north at zero rotation offset), 90 for +X.
func HeadingDegFromOffset(x, z float64) float64 {
	if math.Abs(x) < 1e-9 && math.Abs(z) < 1e-9 {
		return 0
	}
	return NormalizeDeg(math.Atan2(x, z) * 180.0 / math.Pi)
}

// OffsetFromHeadingDeg returns a unit XZ offset pointing along the
// given heading.
func OffsetFromHeadingDeg(deg float64) (x, z float64) {
	rad := deg * math.Pi / 180.0
	return math.Sin(rad), math.Cos(rad)
}
