// Package sample owns the remote pose sample model and the single-slot
// handoff between the transport producers and the tick consumer.
package sample

import (
	"math"
	"time"
)

// Source identifies which transport produced a sample.
type Source string

const (
	SourcePoll    Source = "poll"    // periodic HTTP pull
	SourceIngest  Source = "ingest"  // HTTP push to /api/ingest
	SourceUDP     Source = "udp"     // low-latency datagram channel
	SourceUnknown Source = "unknown"
)

// GeoSample is one remotely reported geodetic pose. Altitude is carried
// for logging but never used for placement.
type GeoSample struct {
	Timestamp time.Time // reporter clock; zero when the source omits it
	Lat       float64
	Lon       float64
	Alt       float64
	YawDeg    float64
	PitchDeg  float64
	RollDeg   float64
}

// Valid reports whether the sample carries a usable geodetic fix. A
// reading of exactly (0, 0) is the no-fix sentinel and is never valid,
// and out-of-range coordinates are rejected outright.
func (s GeoSample) Valid() bool {
	if s.Lat == 0 && s.Lon == 0 {
		return false
	}
	if math.IsNaN(s.Lat) || math.IsNaN(s.Lon) {
		return false
	}
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		return false
	}
	return true
}
