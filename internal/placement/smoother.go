package placement

import (
	"math"
	"time"
)

// minSmootherDt floors the elapsed time between updates so that two
// samples arriving in the same instant cannot zero out the blend.
const minSmootherDt = 1e-3

// Smoother is a jump-limited one-pole low-pass filter for a scalar
// signal. A single sample further than MaxStep from the current value
// is clamped before blending, so one misdetected surface point cannot
// yank the output, while a genuine level change is tracked within
// roughly Tau seconds.
type Smoother struct {
	TauSecs  float64 // time constant of the exponential blend
	MaxStep  float64 // largest change accepted from one sample

	value       float64
	lastUpdate  time.Time
	initialized bool
}

// NewSmoother returns a Smoother with the given time constant and
// per-update step limit, both in the signal's units.
func NewSmoother(tauSecs, maxStep float64) *Smoother {
	return &Smoother{TauSecs: tauSecs, MaxStep: maxStep}
}

// Update feeds one measured sample at the given time and returns the
// filtered value. The first update adopts the measurement as-is.
func (s *Smoother) Update(measured float64, now time.Time) float64 {
	if !s.initialized {
		s.value = measured
		s.lastUpdate = now
		s.initialized = true
		return s.value
	}

	delta := measured - s.value
	if s.MaxStep > 0 && math.Abs(delta) > s.MaxStep {
		measured = s.value + math.Copysign(s.MaxStep, delta)
	}

	dt := now.Sub(s.lastUpdate).Seconds()
	if dt < minSmootherDt {
		dt = minSmootherDt
	}
	tau := s.TauSecs
	if tau <= 0 {
		tau = minSmootherDt
	}
	alpha := 1 - math.Exp(-dt/tau)
	s.value += (measured - s.value) * alpha
	s.lastUpdate = now
	return s.value
}

// Value returns the current filtered value and whether the filter has
// been initialized by at least one update.
func (s *Smoother) Value() (float64, bool) {
	return s.value, s.initialized
}

// Reset clears the filter state for a new session.
func (s *Smoother) Reset() {
	s.value = 0
	s.lastUpdate = time.Time{}
	s.initialized = false
}
