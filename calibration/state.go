// Package calibration holds the zero offset subtracted from gyroscope samples
// before they are mapped to stick axes.
package calibration

import (
	"sync/atomic"

	"github.com/Alia5/motionpad/motion"
)

// Offset is the per-axis zero point.
type Offset = motion.Vector3

// State owns the current offset. The whole vector is swapped atomically, so a
// reader never observes a partially updated offset. The zero value is ready to
// use and holds a zero offset.
type State struct {
	off atomic.Pointer[Offset]
}

// New returns a State with a zero offset.
func New() *State {
	return &State{}
}

// Calibrate makes the sample's current reading the new zero point.
func (s *State) Calibrate(sample motion.RawSample) {
	v := sample.Value
	s.off.Store(&v)
}

// Reset restores the zero offset.
func (s *State) Reset() {
	s.off.Store(nil)
}

// Offset returns the current offset.
func (s *State) Offset() Offset {
	if p := s.off.Load(); p != nil {
		return *p
	}
	return Offset{}
}

// IsZero reports whether no calibration is in effect.
func (s *State) IsZero() bool {
	return s.Offset() == Offset{}
}
