// Package frame defines ControlFrame, the packet sent to the host on every
// scheduler tick, and its wire codecs.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Size is the length of a binary-encoded ControlFrame.
const Size = 32

// Button bits. Nothing in the motion pipeline sets them yet; they are part of
// the wire contract so hosts can map them.
const (
	ButtonA uint32 = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonLeftShoulder
	ButtonRightShoulder
	ButtonSelect
	ButtonStart
)

var (
	// ErrNonFinite is returned when a float field is NaN or ±Inf.
	ErrNonFinite = errors.New("non-finite value")
	// ErrOutOfRange is returned when a stick value lies outside [-1, 1].
	ErrOutOfRange = errors.New("stick value out of range")
	// ErrMalformed is returned by decoders for input that is not a frame.
	// The stream stays aligned on the next frame.
	ErrMalformed = errors.New("malformed frame")
)

// ControlFrame is the controller state at one instant.
type ControlFrame struct {
	// Sticks, -1..1
	LeftX  float32 `json:"leftX"`
	LeftY  float32 `json:"leftY"`
	RightX float32 `json:"rightX"`
	RightY float32 `json:"rightY"`
	// Button bitfield, 0 = released
	Buttons uint32 `json:"buttons"`
	// Heading in radians
	Azimuth float32 `json:"azimuth"`
	// Milliseconds since the session epoch
	Timestamp uint64 `json:"timestamp"`
}

// ClampStick converts v to a stick value, clamping to [-1, 1]. NaN maps to 0.
func ClampStick(v float64) float32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return float32(v)
}

// Validate reports the first field that must not go on the wire.
func (f *ControlFrame) Validate() error {
	sticks := []struct {
		name string
		v    float32
	}{
		{"leftX", f.LeftX},
		{"leftY", f.LeftY},
		{"rightX", f.RightX},
		{"rightY", f.RightY},
	}
	for _, s := range sticks {
		v := float64(s.v)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %w", s.name, ErrNonFinite)
		}
		if v < -1 || v > 1 {
			return fmt.Errorf("%s=%v: %w", s.name, v, ErrOutOfRange)
		}
	}
	az := float64(f.Azimuth)
	if math.IsNaN(az) || math.IsInf(az, 0) {
		return fmt.Errorf("azimuth: %w", ErrNonFinite)
	}
	return nil
}

// MarshalBinary encodes the frame to Size bytes.
// Layout (little-endian):
//
//	 0-3:  leftX  f32
//	 4-7:  leftY  f32
//	 8-11: rightX f32
//	12-15: rightY f32
//	16-19: buttons u32
//	20-23: azimuth f32
//	24-31: timestamp u64
func (f *ControlFrame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, Size)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(f.LeftX))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(f.LeftY))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(f.RightX))
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(f.RightY))
	binary.LittleEndian.PutUint32(b[16:20], f.Buttons)
	binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(f.Azimuth))
	binary.LittleEndian.PutUint64(b[24:32], f.Timestamp)
	return b, nil
}

// UnmarshalBinary decodes Size bytes into the frame.
func (f *ControlFrame) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return io.ErrUnexpectedEOF
	}
	f.LeftX = math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	f.LeftY = math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	f.RightX = math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))
	f.RightY = math.Float32frombits(binary.LittleEndian.Uint32(data[12:16]))
	f.Buttons = binary.LittleEndian.Uint32(data[16:20])
	f.Azimuth = math.Float32frombits(binary.LittleEndian.Uint32(data[20:24]))
	f.Timestamp = binary.LittleEndian.Uint64(data[24:32])
	return nil
}
