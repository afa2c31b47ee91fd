// Package geo converts geodetic deltas into the local placement frame.
//
// The local frame is right-handed with X pointing right (east at zero
// rotation offset), Y up, and Z forward (north at zero rotation offset).
// Yaw rotates about Y; heading 0 is north and 90 is east.
package geo

import "math"

// MetersPerDegLat is the flat-earth scale for one degree of latitude.
const MetersPerDegLat = 111_320.0

// Vec3 is a position or offset in the local frame, in metres.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// HorizontalMag returns the magnitude of the XZ components.
func (v Vec3) HorizontalMag() float64 {
	return math.Hypot(v.X, v.Z)
}

// Lerp returns v blended toward o by t in [0,1].
func Lerp(v, o Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// Projector converts geodetic coordinates near a fixed origin into
// planar east/north metres using the equirectangular approximation.
// Valid only at city scale around the origin; accuracy degrades with
// distance and at extreme latitudes, and that is accepted rather than
// corrected.
type Projector struct {
	OriginLat float64
	OriginLon float64
}

func (p Projector) metersPerDegLon() float64 {
	return MetersPerDegLat * math.Cos(p.OriginLat*math.Pi/180.0)
}

// Project returns the east/north displacement in metres from the origin
// to the given latitude/longitude.
func (p Projector) Project(lat, lon float64) (east, north float64) {
	north = (lat - p.OriginLat) * MetersPerDegLat
	east = (lon - p.OriginLon) * p.metersPerDegLon()
	return east, north
}

// Unproject is the inverse of Project, used by tests and the report
// tool to recover geodetic deltas from local offsets.
func (p Projector) Unproject(east, north float64) (lat, lon float64) {
	lat = p.OriginLat + north/MetersPerDegLat
	lon = p.OriginLon + east/p.metersPerDegLon()
	return lat, lon
}

// AlignToLocal rotates an east/north offset into the local XZ plane by
// the calibrated rotation offset in degrees. The vertical component is
// never touched here.
func AlignToLocal(east, north, rotationOffsetDeg float64) (x, z float64) {
	rad := rotationOffsetDeg * math.Pi / 180.0
	sin, cos := math.Sin(rad), math.Cos(rad)
	// Rotating the frame by +offset about the up axis: east maps toward
	// +X, north toward +Z.
	x = east*cos + north*sin
	z = north*cos - east*sin
	return x, z
}

// ClampRange limits the horizontal magnitude of an offset to
// maxDistance, preserving its direction. Offsets at or under the limit
// pass through unchanged.
func ClampRange(x, z, maxDistance float64) (float64, float64) {
	if maxDistance <= 0 {
		return 0, 0
	}
	mag := math.Hypot(x, z)
	if mag <= maxDistance || mag == 0 {
		return x, z
	}
	s := maxDistance / mag
	return x * s, z * s
}
