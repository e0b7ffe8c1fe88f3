// Package mapper turns calibrated motion samples into normalized stick axes.
package mapper

import (
	"errors"
	"fmt"
	"math"

	"github.com/Alia5/motionpad/calibration"
	"github.com/Alia5/motionpad/motion"
)

const (
	// DefaultSaturation is the angular rate (rad/s) that drives a stick to full deflection.
	DefaultSaturation = 2.0
	// DefaultDeadZone is the angular rate at or below which an axis reads zero.
	DefaultDeadZone = 0.1
)

// ErrInvalidConfig is returned by New for unusable saturation or dead zone values.
var ErrInvalidConfig = errors.New("invalid mapper config")

// Config represents the mapper configuration.
type Config struct {
	Saturation float64 `help:"Angular rate (rad/s) mapped to full stick deflection" default:"2.0" env:"MOTIONPAD_MAPPER_SATURATION"`
	DeadZone   float64 `help:"Angular rate (rad/s) at or below which an axis reads zero" default:"0.1" env:"MOTIONPAD_MAPPER_DEAD_ZONE"`
	Azimuth    bool    `help:"Fill the azimuth field from accelerometer and magnetometer" default:"false" env:"MOTIONPAD_MAPPER_AZIMUTH"`
}

// DefaultConfig returns the stock saturation and dead zone with azimuth disabled.
func DefaultConfig() Config {
	return Config{Saturation: DefaultSaturation, DeadZone: DefaultDeadZone}
}

// Mapper converts gyroscope rates into stick deflection. It holds no mutable
// state and is safe for concurrent use.
type Mapper struct {
	sat      float64
	deadZone float64
	azimuth  bool
}

// New validates cfg and returns a Mapper.
func New(cfg Config) (*Mapper, error) {
	if cfg.Saturation <= 0 || math.IsNaN(cfg.Saturation) || math.IsInf(cfg.Saturation, 0) {
		return nil, fmt.Errorf("%w: saturation must be a positive finite number, got %v", ErrInvalidConfig, cfg.Saturation)
	}
	if cfg.DeadZone < 0 || math.IsNaN(cfg.DeadZone) || math.IsInf(cfg.DeadZone, 0) {
		return nil, fmt.Errorf("%w: dead zone must be a non-negative finite number, got %v", ErrInvalidConfig, cfg.DeadZone)
	}
	return &Mapper{sat: cfg.Saturation, deadZone: cfg.DeadZone, azimuth: cfg.Azimuth}, nil
}

// Map subtracts calib from raw and returns the left stick deflection: roll
// (raw X) drives axisX and pitch (raw Y) drives axisY, both in [-1, 1].
func (m *Mapper) Map(raw motion.RawSample, calib calibration.Offset) (axisX, axisY float64) {
	v := raw.Value.Sub(calib)
	return m.Axis(v.X), m.Axis(v.Y)
}

// Axis maps a single calibrated rate to [-1, 1].
func (m *Mapper) Axis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = clamp(v, -m.sat, m.sat)
	if math.Abs(v) <= m.deadZone {
		return 0
	}
	return clamp(v/m.sat, -1, 1)
}

// AzimuthEnabled reports whether Heading should be used to fill the azimuth.
func (m *Mapper) AzimuthEnabled() bool { return m.azimuth }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
