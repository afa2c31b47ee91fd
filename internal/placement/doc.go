// Package placement turns remotely reported geodetic pose samples into
// a stable target pose in the local frame.
//
// Responsibilities: one-shot origin calibration, the per-tick
// project → align → clamp → resolve-height pipeline, jump-limited
// low-pass height smoothing, pose blending, and the degraded fallback
// used when calibration or live data is unavailable.
//
// The package performs no I/O. Transports feed a sample.Mailbox and the
// caller drives Engine.Tick at a fixed rate.
package placement
