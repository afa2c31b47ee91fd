// Package api exposes the placement service over HTTP: the latest
// remote sample, the current target pose, an ingest endpoint for
// pushed poses, and status/config introspection.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yutaka0114/telepose/internal/config"
	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/ingest"
	"github.com/yutaka0114/telepose/internal/monitoring"
	"github.com/yutaka0114/telepose/internal/placement"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves the placement HTTP API.
type Server struct {
	mailbox *sample.Mailbox
	engine  *placement.Engine
	cfg     *config.TuningConfig
	store   *ingest.Recorder
	clock   timeutil.Clock
}

// NewServer creates an API server. store may be nil to disable sample
// logging on the ingest endpoint.
func NewServer(mailbox *sample.Mailbox, engine *placement.Engine, cfg *config.TuningConfig, store *ingest.Recorder, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{mailbox: mailbox, engine: engine, cfg: cfg, store: store, clock: clock}
}

// ServeMux mounts the API handlers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pose", s.showPose)
	mux.HandleFunc("/api/ingest", s.ingestPose)
	mux.HandleFunc("/api/target", s.showTarget)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// PoseResponse is the pull shape served by /api/pose. The no-data
// variant carries ok=false and a reason instead.
type PoseResponse struct {
	OK            bool    `json:"ok"`
	Reason        string  `json:"reason,omitempty"`
	Timestamp     float64 `json:"timestamp,omitempty"`
	YawDeg        float64 `json:"yaw_deg"`
	Pos           posXYZ  `json:"pos"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Alt           float64 `json:"alt"`
	Calibrated    bool    `json:"calibrated"`
	CalibMethod   string  `json:"calib_method"`
	CalibScale    float64 `json:"calib_scale"`
	CalibThetaDeg float64 `json:"calib_theta_deg"`
}

type posXYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap, ok := s.mailbox.Latest()
	if !ok {
		reason := s.mailbox.NoDataReason()
		if reason == "" {
			reason = "no sample received"
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"ok": false, "reason": reason})
		return
	}

	resp := PoseResponse{
		OK:          true,
		YawDeg:      snap.Sample.YawDeg,
		Lat:         snap.Sample.Lat,
		Lon:         snap.Sample.Lon,
		Alt:         snap.Sample.Alt,
		CalibMethod: s.cfg.GetHeadingSource(),
		CalibScale:  1.0,
	}
	ts := snap.Sample.Timestamp
	if ts.IsZero() {
		ts = snap.ReceivedAt
	}
	resp.Timestamp = float64(ts.UnixNano()) / 1e9

	if frame, calibrated := s.engine.Calibrated(); calibrated {
		resp.Calibrated = true
		resp.CalibThetaDeg = frame.RotationOffsetDeg
	}
	if target, has := s.engine.LastTarget(); has {
		resp.Pos = posXYZ{X: target.Position.X, Y: target.Position.Y, Z: target.Position.Z}
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) ingestPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if token := s.cfg.GetIngestToken(); token != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			httputil.Unauthorized(w, "missing or invalid bearer token")
			return
		}
	}

	var pose ingest.EgressPose
	if err := json.NewDecoder(r.Body).Decode(&pose); err != nil {
		httputil.BadRequest(w, "failed to decode pose body")
		return
	}

	gs := sample.GeoSample{
		Lat:      pose.Lat,
		Lon:      pose.Lon,
		Alt:      pose.Alt,
		YawDeg:   pose.HeadingDeg,
		PitchDeg: pose.PitchDeg,
		RollDeg:  pose.RollDeg,
	}
	now := s.clock.Now()
	if !s.mailbox.Publish(gs, sample.SourceIngest, now) {
		httputil.BadRequest(w, "invalid geodetic reading")
		return
	}
	if s.store != nil {
		s.store.Record(gs, sample.SourceIngest, now)
	}

	httputil.WriteJSONOK(w, map[string]bool{"ok": true})
}

// TargetResponse is the current engine output served by /api/target.
type TargetResponse struct {
	OK       bool    `json:"ok"`
	Pos      posXYZ  `json:"pos"`
	YawDeg   float64 `json:"yaw_deg"`
	Degraded bool    `json:"degraded"`
}

func (s *Server) showTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	target, ok := s.engine.LastTarget()
	if !ok {
		httputil.WriteJSONOK(w, map[string]interface{}{"ok": false, "reason": "no tick has run"})
		return
	}
	httputil.WriteJSONOK(w, TargetResponse{
		OK:       true,
		Pos:      posXYZ{X: target.Position.X, Y: target.Position.Y, Z: target.Position.Z},
		YawDeg:   target.YawDeg,
		Degraded: target.Degraded,
	})
}

// StatusResponse summarizes the session for /api/status.
type StatusResponse struct {
	SessionID     string   `json:"session_id"`
	Calibrated    bool     `json:"calibrated"`
	OriginLat     *float64 `json:"origin_lat,omitempty"`
	OriginLon     *float64 `json:"origin_lon,omitempty"`
	ThetaDeg      *float64 `json:"calib_theta_deg,omitempty"`
	HasSample     bool     `json:"has_sample"`
	SampleAgeSecs *float64 `json:"sample_age_secs,omitempty"`
	SampleSource  string   `json:"sample_source,omitempty"`
	NoDataReason  string   `json:"no_data_reason,omitempty"`
	EverReceived  bool     `json:"ever_received"`
	Ticks         uint64   `json:"ticks"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatusResponse{
		SessionID:    s.engine.SessionID(),
		EverReceived: s.mailbox.EverReceived(),
		NoDataReason: s.mailbox.NoDataReason(),
		Ticks:        s.engine.Ticks(),
	}
	if frame, ok := s.engine.Calibrated(); ok {
		resp.Calibrated = true
		resp.OriginLat = &frame.OriginLat
		resp.OriginLon = &frame.OriginLon
		resp.ThetaDeg = &frame.RotationOffsetDeg
	}
	if snap, ok := s.mailbox.Latest(); ok {
		resp.HasSample = true
		resp.SampleSource = string(snap.Source)
		age := s.clock.Since(snap.ReceivedAt).Seconds()
		resp.SampleAgeSecs = &age
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}
