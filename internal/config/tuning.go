package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Vertical-resolution mode names accepted by vertical_mode.
const (
	VerticalFixed    = "fixed"
	VerticalLive     = "live"
	VerticalSnapshot = "snapshot"
	VerticalGround   = "ground"
)

// Heading-source policy names accepted by heading_source.
const (
	HeadingCompass = "compass" // externally supplied true-heading reading
	HeadingForward = "forward" // observer forward used as self-consistent reference
)

// TuningConfig represents the root configuration for placement tuning.
// The schema matches the /api/config endpoint so the same JSON can be
// used for startup configuration and inspection. Fields omitted from
// the JSON file retain their defaults, so partial configs are safe.
type TuningConfig struct {
	// Remote source params
	SourceURL    *string `json:"source_url,omitempty"`
	PollInterval *string `json:"poll_interval,omitempty"` // duration string like "1s"
	PollTimeout  *string `json:"poll_timeout,omitempty"`  // duration string like "3s"
	StaleAfter   *string `json:"stale_after,omitempty"`   // duration string like "10s"

	// Pose egress params
	PushURL      *string `json:"push_url,omitempty"`
	PushInterval *string `json:"push_interval,omitempty"`
	PushToken    *string `json:"push_token,omitempty"` // bearer token, empty disables auth

	// Datagram channel params
	UDPListenAddr *string `json:"udp_listen_addr,omitempty"` // empty disables the listener
	UDPRcvBuf     *int    `json:"udp_rcvbuf,omitempty"`

	// Ingest endpoint auth
	IngestToken *string `json:"ingest_token,omitempty"` // bearer token, empty disables auth

	// Placement params
	TickInterval  *string  `json:"tick_interval,omitempty"`
	MaxDistanceM  *float64 `json:"max_distance_m,omitempty"`
	YawOffsetDeg  *float64 `json:"yaw_offset_deg,omitempty"`
	GeodeticYaw   *bool    `json:"geodetic_yaw,omitempty"` // sample yaw is true-north relative
	HeadingSource *string  `json:"heading_source,omitempty"`
	PositionBlend *float64 `json:"position_blend,omitempty"` // per-tick factor (0,1]
	RotationBlend *float64 `json:"rotation_blend,omitempty"` // per-tick factor (0,1]

	// Degraded-mode params
	AlwaysVisible        *bool    `json:"always_visible,omitempty"`
	StandoffDistanceM    *float64 `json:"standoff_distance_m,omitempty"`
	DegradedWhilePending *bool    `json:"degraded_while_pending,omitempty"`
	DegradedUseSampleYaw *bool    `json:"degraded_use_sample_yaw,omitempty"`

	// Vertical-resolution params
	VerticalMode      *string  `json:"vertical_mode,omitempty"`
	FixedHeightM      *float64 `json:"fixed_height_m,omitempty"`
	HeightTauSecs     *float64 `json:"height_tau_secs,omitempty"`
	HeightMaxStepM    *float64 `json:"height_max_step_m,omitempty"`
	HeightOffsetM     *float64 `json:"height_offset_m,omitempty"`
	ProbeRayHeightM   *float64 `json:"probe_ray_height_m,omitempty"`
	ProbeMaxDistanceM *float64 `json:"probe_max_distance_m,omitempty"`
	AnchorCorrection  *bool    `json:"anchor_correction,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to have a .json extension and to sit under the max size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are well formed.
func (c *TuningConfig) Validate() error {
	for name, d := range map[string]*string{
		"poll_interval": c.PollInterval,
		"poll_timeout":  c.PollTimeout,
		"stale_after":   c.StaleAfter,
		"push_interval": c.PushInterval,
		"tick_interval": c.TickInterval,
	} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}

	if c.MaxDistanceM != nil && *c.MaxDistanceM <= 0 {
		return fmt.Errorf("max_distance_m must be positive, got %f", *c.MaxDistanceM)
	}
	if c.PositionBlend != nil && (*c.PositionBlend <= 0 || *c.PositionBlend > 1) {
		return fmt.Errorf("position_blend must be in (0, 1], got %f", *c.PositionBlend)
	}
	if c.RotationBlend != nil && (*c.RotationBlend <= 0 || *c.RotationBlend > 1) {
		return fmt.Errorf("rotation_blend must be in (0, 1], got %f", *c.RotationBlend)
	}
	if c.HeightTauSecs != nil && *c.HeightTauSecs <= 0 {
		return fmt.Errorf("height_tau_secs must be positive, got %f", *c.HeightTauSecs)
	}
	if c.HeightMaxStepM != nil && *c.HeightMaxStepM <= 0 {
		return fmt.Errorf("height_max_step_m must be positive, got %f", *c.HeightMaxStepM)
	}

	if c.VerticalMode != nil {
		switch *c.VerticalMode {
		case VerticalFixed, VerticalLive, VerticalSnapshot, VerticalGround:
		default:
			return fmt.Errorf("unknown vertical_mode %q", *c.VerticalMode)
		}
	}
	if c.HeadingSource != nil {
		switch *c.HeadingSource {
		case HeadingCompass, HeadingForward:
		default:
			return fmt.Errorf("unknown heading_source %q", *c.HeadingSource)
		}
	}

	return nil
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSourceURL returns the remote pose source URL or "".
func (c *TuningConfig) GetSourceURL() string {
	if c.SourceURL == nil {
		return ""
	}
	return *c.SourceURL
}

// GetPollInterval returns the poll interval or the default.
func (c *TuningConfig) GetPollInterval() time.Duration {
	return c.duration(c.PollInterval, time.Second)
}

// GetPollTimeout returns the per-request poll timeout or the default.
func (c *TuningConfig) GetPollTimeout() time.Duration {
	return c.duration(c.PollTimeout, 3*time.Second)
}

// GetStaleAfter returns the sample staleness threshold or the default.
func (c *TuningConfig) GetStaleAfter() time.Duration {
	return c.duration(c.StaleAfter, 10*time.Second)
}

// GetPushURL returns the pose egress URL or "".
func (c *TuningConfig) GetPushURL() string {
	if c.PushURL == nil {
		return ""
	}
	return *c.PushURL
}

// GetPushInterval returns the egress interval or the default.
func (c *TuningConfig) GetPushInterval() time.Duration {
	return c.duration(c.PushInterval, 2*time.Second)
}

// GetPushToken returns the egress bearer token or "".
func (c *TuningConfig) GetPushToken() string {
	if c.PushToken == nil {
		return ""
	}
	return *c.PushToken
}

// GetUDPListenAddr returns the datagram listen address or "".
func (c *TuningConfig) GetUDPListenAddr() string {
	if c.UDPListenAddr == nil {
		return ""
	}
	return *c.UDPListenAddr
}

// GetUDPRcvBuf returns the datagram receive buffer size or the default.
func (c *TuningConfig) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 1 << 16
	}
	return *c.UDPRcvBuf
}

// GetIngestToken returns the ingest bearer token or "".
func (c *TuningConfig) GetIngestToken() string {
	if c.IngestToken == nil {
		return ""
	}
	return *c.IngestToken
}

// GetTickInterval returns the engine tick interval or the default.
func (c *TuningConfig) GetTickInterval() time.Duration {
	return c.duration(c.TickInterval, 50*time.Millisecond)
}

// GetMaxDistanceM returns the placement distance ceiling or the default.
func (c *TuningConfig) GetMaxDistanceM() float64 {
	if c.MaxDistanceM == nil {
		return 30.0
	}
	return *c.MaxDistanceM
}

// GetYawOffsetDeg returns the configured yaw offset or the default.
func (c *TuningConfig) GetYawOffsetDeg() float64 {
	if c.YawOffsetDeg == nil {
		return 0
	}
	return *c.YawOffsetDeg
}

// GetGeodeticYaw reports whether sample yaw is true-north relative.
func (c *TuningConfig) GetGeodeticYaw() bool {
	if c.GeodeticYaw == nil {
		return false
	}
	return *c.GeodeticYaw
}

// GetHeadingSource returns the heading-source policy or the default.
func (c *TuningConfig) GetHeadingSource() string {
	if c.HeadingSource == nil {
		return HeadingCompass
	}
	return *c.HeadingSource
}

// GetPositionBlend returns the per-tick position blend factor.
func (c *TuningConfig) GetPositionBlend() float64 {
	if c.PositionBlend == nil {
		return 0.15
	}
	return *c.PositionBlend
}

// GetRotationBlend returns the per-tick rotation blend factor.
func (c *TuningConfig) GetRotationBlend() float64 {
	if c.RotationBlend == nil {
		return 0.2
	}
	return *c.RotationBlend
}

// GetAlwaysVisible reports whether the degraded placement is forced on.
func (c *TuningConfig) GetAlwaysVisible() bool {
	if c.AlwaysVisible == nil {
		return false
	}
	return *c.AlwaysVisible
}

// GetStandoffDistanceM returns the degraded-mode standoff distance.
func (c *TuningConfig) GetStandoffDistanceM() float64 {
	if c.StandoffDistanceM == nil {
		return 2.0
	}
	return *c.StandoffDistanceM
}

// GetDegradedWhilePending reports whether to show the degraded
// placement instead of holding the previous target while calibration
// is pending.
func (c *TuningConfig) GetDegradedWhilePending() bool {
	if c.DegradedWhilePending == nil {
		return false
	}
	return *c.DegradedWhilePending
}

// GetDegradedUseSampleYaw reports whether degraded placement takes its
// rotation from the latest sample's yaw when one is present.
func (c *TuningConfig) GetDegradedUseSampleYaw() bool {
	if c.DegradedUseSampleYaw == nil {
		return true
	}
	return *c.DegradedUseSampleYaw
}

// GetVerticalMode returns the vertical-resolution mode or the default.
func (c *TuningConfig) GetVerticalMode() string {
	if c.VerticalMode == nil {
		return VerticalSnapshot
	}
	return *c.VerticalMode
}

// GetFixedHeightM returns the fixed-mode height value.
func (c *TuningConfig) GetFixedHeightM() float64 {
	if c.FixedHeightM == nil {
		return 0
	}
	return *c.FixedHeightM
}

// GetHeightTauSecs returns the height smoothing time constant.
func (c *TuningConfig) GetHeightTauSecs() float64 {
	if c.HeightTauSecs == nil {
		return 0.8
	}
	return *c.HeightTauSecs
}

// GetHeightMaxStepM returns the height smoothing max step per update.
func (c *TuningConfig) GetHeightMaxStepM() float64 {
	if c.HeightMaxStepM == nil {
		return 0.5
	}
	return *c.HeightMaxStepM
}

// GetHeightOffsetM returns the fixed vertical offset added after
// resolution.
func (c *TuningConfig) GetHeightOffsetM() float64 {
	if c.HeightOffsetM == nil {
		return 0
	}
	return *c.HeightOffsetM
}

// GetProbeRayHeightM returns how far above the candidate position the
// ground probe starts.
func (c *TuningConfig) GetProbeRayHeightM() float64 {
	if c.ProbeRayHeightM == nil {
		return 3.0
	}
	return *c.ProbeRayHeightM
}

// GetProbeMaxDistanceM returns the maximum downward probe distance.
func (c *TuningConfig) GetProbeMaxDistanceM() float64 {
	if c.ProbeMaxDistanceM == nil {
		return 10.0
	}
	return *c.ProbeMaxDistanceM
}

// GetAnchorCorrection reports whether the anchor-height correction is
// applied to non-ground vertical modes.
func (c *TuningConfig) GetAnchorCorrection() bool {
	if c.AnchorCorrection == nil {
		return false
	}
	return *c.AnchorCorrection
}
