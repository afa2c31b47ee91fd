package main

import (
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/yutaka0114/telepose/internal/sample"
)

// FixTracker accumulates a geodetic fix from a stream of NMEA
// sentences. RMC supplies position, course, and validity; GGA supplies
// position and altitude. It implements ingest.EgressSource: no pose is
// reported until a valid RMC has been seen.
type FixTracker struct {
	mu     sync.Mutex
	lat    float64
	lon    float64
	alt    float64
	course float64
	stamp  time.Time
	hasFix bool
}

func NewFixTracker() *FixTracker {
	return &FixTracker{}
}

// ApplyLine parses one NMEA sentence and folds it into the current
// fix. Blank lines and non-NMEA noise are ignored; parse errors are
// returned so callers can log them.
func (f *FixTracker) ApplyLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			f.hasFix = false
			return nil
		}
		f.lat = m.Latitude
		f.lon = m.Longitude
		f.course = m.Course
		f.stamp = time.Now()
		f.hasFix = true
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return nil
		}
		f.alt = m.Altitude
		if f.hasFix {
			f.lat = m.Latitude
			f.lon = m.Longitude
		}
	}
	return nil
}

// CurrentGeoPose returns the latest complete fix, or false when no
// valid RMC has been received yet.
func (f *FixTracker) CurrentGeoPose() (sample.GeoSample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasFix {
		return sample.GeoSample{}, false
	}
	return sample.GeoSample{
		Timestamp: f.stamp,
		Lat:       f.lat,
		Lon:       f.lon,
		Alt:       f.alt,
		YawDeg:    f.course,
	}, true
}
