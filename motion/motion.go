// Package motion defines the raw sensor sample model and the sampler boundary
// that feeds the control pipeline.
package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// SensorKind identifies the physical sensor that produced a sample.
type SensorKind uint8

const (
	Gyroscope SensorKind = iota
	Accelerometer
	Magnetometer

	numKinds
)

// Kinds lists every sensor kind in a stable order.
var Kinds = []SensorKind{Gyroscope, Accelerometer, Magnetometer}

func (k SensorKind) String() string {
	switch k {
	case Gyroscope:
		return "gyroscope"
	case Accelerometer:
		return "accelerometer"
	case Magnetometer:
		return "magnetometer"
	default:
		return fmt.Sprintf("sensor(%d)", uint8(k))
	}
}

// ParseSensorKind accepts the names returned by String plus a few short forms.
func ParseSensorKind(s string) (SensorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gyroscope", "gyro", "anglvel":
		return Gyroscope, nil
	case "accelerometer", "accel":
		return Accelerometer, nil
	case "magnetometer", "mag", "magn":
		return Magnetometer, nil
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k SensorKind) MarshalText() ([]byte, error) {
	if k >= numKinds {
		return nil, fmt.Errorf("unknown sensor kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SensorKind) UnmarshalText(b []byte) error {
	v, err := ParseSensorKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Vector3 is a 3-axis reading in sensor units (rad/s, m/s², µT).
type Vector3 struct {
	X, Y, Z float64
}

// Sub returns v - o component-wise.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// IsFinite reports whether no component is NaN or ±Inf.
func (v Vector3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vector3) String() string {
	return fmt.Sprintf("X=%.2f, Y=%.2f, Z=%.2f", v.X, v.Y, v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RawSample is a single timestamped reading. It is passed by value and never
// mutated after it has been produced.
type RawSample struct {
	Kind  SensorKind
	Time  time.Time
	Value Vector3
}

// ErrSensorUnavailable is returned by Subscribe when the requested kind has no
// hardware backing. Fields derived from that kind stay at their zero value.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Sampler delivers samples of one kind to a callback. Callbacks may be invoked
// from any goroutine at any cadence.
type Sampler interface {
	Subscribe(kind SensorKind, fn func(RawSample)) error
}

// Source is a Sampler that produces samples while Run is active.
type Source interface {
	Sampler
	// Run blocks, emitting samples to subscribers until ctx is done.
	Run(ctx context.Context) error
}
