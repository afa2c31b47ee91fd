package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/yutaka0114/telepose/internal/monitoring"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

// Datagram is the compact JSON shape of the low-latency channel. The
// pos field mirrors the sender's local estimate and is not consumed by
// the placement core. Geodetic fields are optional: a datagram without
// a fix refreshes only the orientation of the current sample.
type Datagram struct {
	Pos struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"pos"`
	YawDeg   float64  `json:"yaw_deg"`
	PitchDeg *float64 `json:"pitch_deg,omitempty"`
	RollDeg  *float64 `json:"roll_deg,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Alt      *float64 `json:"alt,omitempty"`
}

// DatagramListenerConfig configures the UDP listener.
type DatagramListenerConfig struct {
	Address string
	RcvBuf  int
}

// DatagramListener receives compact pose datagrams. All immediately
// pending datagrams are drained and only the most recent one is
// published, so a burst never queues up behind the consumer.
type DatagramListener struct {
	cfg     DatagramListenerConfig
	mailbox *sample.Mailbox
	clock   timeutil.Clock
	store   *Recorder
	conn    *net.UDPConn
}

// NewDatagramListener creates a listener. store may be nil.
func NewDatagramListener(cfg DatagramListenerConfig, mailbox *sample.Mailbox, clock timeutil.Clock, store *Recorder) *DatagramListener {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DatagramListener{cfg: cfg, mailbox: mailbox, clock: clock, store: store}
}

// Start listens for datagrams until the context is cancelled.
func (l *DatagramListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Logf("warning: failed to set UDP receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("UDP pose listener started on %s", l.cfg.Address)

	buffer := make([]byte, 2048)
	latest := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP pose listener stopping: %v", ctx.Err())
			return ctx.Err()
		default:
			// Read deadline allows checking context cancellation.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			// Drain everything already queued and keep only the newest.
			latest = append(latest[:0], buffer[:n]...)
			for {
				conn.SetReadDeadline(time.Now())
				n, _, err = conn.ReadFromUDP(buffer)
				if err != nil {
					break
				}
				latest = append(latest[:0], buffer[:n]...)
			}

			if err := l.handleDatagram(latest); err != nil {
				monitoring.Logf("error handling pose datagram: %v", err)
			}
		}
	}
}

func (l *DatagramListener) handleDatagram(payload []byte) error {
	var d Datagram
	if err := json.Unmarshal(payload, &d); err != nil {
		return fmt.Errorf("failed to decode datagram: %w", err)
	}

	now := l.clock.Now()
	s, ok := l.sampleFromDatagram(d)
	if !ok {
		return nil // orientation-only datagram before any geodetic fix
	}

	if !l.mailbox.Publish(s, sample.SourceUDP, now) {
		return fmt.Errorf("datagram rejected: invalid geodetic reading (%.6f, %.6f)", s.Lat, s.Lon)
	}
	if l.store != nil {
		l.store.Record(s, sample.SourceUDP, now)
	}
	return nil
}

// sampleFromDatagram builds a GeoSample from the datagram, merging an
// orientation-only datagram onto the active sample's fix.
func (l *DatagramListener) sampleFromDatagram(d Datagram) (sample.GeoSample, bool) {
	var s sample.GeoSample
	if d.Lat != nil && d.Lon != nil {
		s.Lat = *d.Lat
		s.Lon = *d.Lon
		if d.Alt != nil {
			s.Alt = *d.Alt
		}
	} else {
		snap, ok := l.mailbox.Latest()
		if !ok {
			return sample.GeoSample{}, false
		}
		s.Lat = snap.Sample.Lat
		s.Lon = snap.Sample.Lon
		s.Alt = snap.Sample.Alt
		s.PitchDeg = snap.Sample.PitchDeg
		s.RollDeg = snap.Sample.RollDeg
	}

	s.YawDeg = d.YawDeg
	if d.PitchDeg != nil {
		s.PitchDeg = *d.PitchDeg
	}
	if d.RollDeg != nil {
		s.RollDeg = *d.RollDeg
	}
	return s, true
}

// Close closes the UDP socket.
func (l *DatagramListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
