package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/monitoring"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

// EgressPose is the push wire shape submitted to a remote ingest
// endpoint.
type EgressPose struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	HeadingDeg float64 `json:"heading_deg"`
	PitchDeg   float64 `json:"pitch_deg"`
	RollDeg    float64 `json:"roll_deg"`
}

// EgressSource supplies the local pose readings to push. Returning
// false skips the round.
type EgressSource interface {
	CurrentGeoPose() (sample.GeoSample, bool)
}

// PusherConfig configures the pose-egress pusher.
type PusherConfig struct {
	PushURL  string
	Interval time.Duration
	Timeout  time.Duration
	Token    string // optional bearer token
}

// Pusher periodically submits the local geodetic pose to a remote
// ingest endpoint. Non-2xx responses and transport errors are logged
// and dropped.
type Pusher struct {
	cfg    PusherConfig
	client httputil.HTTPClient
	source EgressSource
	clock  timeutil.Clock
}

// NewPusher creates a pusher.
func NewPusher(cfg PusherConfig, client httputil.HTTPClient, source EgressSource, clock timeutil.Clock) *Pusher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pusher{cfg: cfg, client: client, source: source, clock: clock}
}

// Run pushes at the configured interval until the context is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	monitoring.Logf("pose pusher started: %s every %s", p.cfg.PushURL, p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("pose pusher stopping: %v", ctx.Err())
			return
		case <-ticker.C():
			if err := p.PushOnce(ctx); err != nil {
				monitoring.Logf("push failed: %v", err)
			}
		}
	}
}

// PushOnce performs a single egress submission.
func (p *Pusher) PushOnce(ctx context.Context) error {
	s, ok := p.source.CurrentGeoPose()
	if !ok {
		return nil // nothing to report this round
	}
	if !s.Valid() {
		return fmt.Errorf("egress source produced invalid reading (%.6f, %.6f)", s.Lat, s.Lon)
	}

	body, err := json.Marshal(EgressPose{
		Lat:        s.Lat,
		Lon:        s.Lon,
		Alt:        s.Alt,
		HeadingDeg: s.YawDeg,
		PitchDeg:   s.PitchDeg,
		RollDeg:    s.RollDeg,
	})
	if err != nil {
		return fmt.Errorf("failed to encode egress pose: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.PushURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push round trip failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push returned status %d", resp.StatusCode)
	}
	return nil
}
