// Package ingest owns the transports that feed the sample mailbox: the
// periodic HTTP poller, the pose-egress pusher, and the low-latency UDP
// datagram listener. All transport failures are non-fatal: they are
// logged and leave the previous sample authoritative.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yutaka0114/telepose/internal/db"
	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/monitoring"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

// PollResponse is the remote source's pull shape. The ok/reason pair is
// the explicit no-data variant, distinguishable from a data-bearing
// body. The pos field is carried by the wire format but not consumed by
// the placement core.
type PollResponse struct {
	OK     *bool  `json:"ok,omitempty"`
	Reason string `json:"reason,omitempty"`

	Timestamp float64 `json:"timestamp"`
	YawDeg    float64 `json:"yaw_deg"`
	Pos       struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"pos"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Alt           float64 `json:"alt"`
	Calibrated    bool    `json:"calibrated"`
	CalibMethod   string  `json:"calib_method"`
	CalibScale    float64 `json:"calib_scale"`
	CalibThetaDeg float64 `json:"calib_theta_deg"`
}

// PollerConfig configures the pose poller.
type PollerConfig struct {
	SourceURL string
	Interval  time.Duration
	Timeout   time.Duration
}

// Poller periodically pulls the latest remote pose sample and publishes
// it to the mailbox. It runs on its own goroutine, independent of the
// tick consumer, and never blocks the tick side.
type Poller struct {
	cfg     PollerConfig
	client  httputil.HTTPClient
	mailbox *sample.Mailbox
	clock   timeutil.Clock
	store   *Recorder
}

// NewPoller creates a poller. store may be nil to disable logging to
// sqlite.
func NewPoller(cfg PollerConfig, client httputil.HTTPClient, mailbox *sample.Mailbox, clock timeutil.Clock, store *Recorder) *Poller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Poller{cfg: cfg, client: client, mailbox: mailbox, clock: clock, store: store}
}

// Run polls at the configured interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	monitoring.Logf("pose poller started: %s every %s", p.cfg.SourceURL, p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("pose poller stopping: %v", ctx.Err())
			return
		case <-ticker.C():
			if err := p.PollOnce(ctx); err != nil {
				// Non-fatal: previous sample stays authoritative.
				monitoring.Logf("poll failed: %v", err)
			}
		}
	}
}

// PollOnce performs a single pull round trip.
func (p *Poller) PollOnce(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.cfg.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll round trip failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read poll body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("poll returned empty body")
	}

	var pr PollResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return fmt.Errorf("failed to decode poll body: %w", err)
	}

	if pr.OK != nil && !*pr.OK {
		// Explicit no-data signal from the source.
		p.mailbox.Invalidate(pr.Reason)
		return nil
	}

	s := sample.GeoSample{
		Lat:      pr.Lat,
		Lon:      pr.Lon,
		Alt:      pr.Alt,
		YawDeg:   pr.YawDeg,
	}
	if pr.Timestamp > 0 {
		sec := int64(pr.Timestamp)
		s.Timestamp = time.Unix(sec, int64((pr.Timestamp-float64(sec))*1e9))
	}

	now := p.clock.Now()
	if !p.mailbox.Publish(s, sample.SourcePoll, now) {
		return fmt.Errorf("poll payload rejected: invalid geodetic reading (%.6f, %.6f)", pr.Lat, pr.Lon)
	}

	if p.store != nil {
		p.store.Record(s, sample.SourcePoll, now)
	}
	return nil
}

// Recorder appends published samples to the sqlite log. Failures are
// logged and dropped; the log is diagnostics, not state.
type Recorder struct {
	db        *db.DB
	sessionID string
}

// NewRecorder wraps the database for a session.
func NewRecorder(database *db.DB, sessionID string) *Recorder {
	return &Recorder{db: database, sessionID: sessionID}
}

// Record logs one sample.
func (r *Recorder) Record(s sample.GeoSample, src sample.Source, now time.Time) {
	err := r.db.RecordSample(db.SampleRecord{
		SessionID:  r.sessionID,
		ReceivedAt: now,
		Source:     string(src),
		Lat:        s.Lat,
		Lon:        s.Lon,
		Alt:        s.Alt,
		YawDeg:     s.YawDeg,
		PitchDeg:   s.PitchDeg,
		RollDeg:    s.RollDeg,
	})
	if err != nil {
		monitoring.Logf("failed to log sample: %v", err)
	}
}
