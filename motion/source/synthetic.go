package source

import (
	"context"
	"math"
	"time"

	"github.com/Alia5/motionpad/motion"
)

type synthetic struct {
	interval time.Duration
	start    time.Time
	now      func() time.Time
	subs     subscribers
}

// NewSynthetic creates a source that generates smoothly changing gyroscope,
// accelerometer and magnetometer readings every interval.
func NewSynthetic(interval time.Duration) motion.Source {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &synthetic{interval: interval, now: time.Now}
}

func (s *synthetic) Subscribe(kind motion.SensorKind, fn func(motion.RawSample)) error {
	if kind >= motion.SensorKind(len(motion.Kinds)) {
		return motion.ErrSensorUnavailable
	}
	s.subs.add(kind, fn)
	return nil
}

func (s *synthetic) Run(ctx context.Context) error {
	s.start = s.now()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.emitAt(s.now())
		}
	}
}

func (s *synthetic) emitAt(t time.Time) {
	elapsed := t.Sub(s.start).Seconds()

	// Slow figure-eight on the two stick axes, peaking past saturation.
	s.subs.emit(motion.RawSample{
		Kind: motion.Gyroscope,
		Time: t,
		Value: motion.Vector3{
			X: 2.5 * math.Sin(elapsed),
			Y: 2.5 * math.Sin(2*elapsed) / 2,
			Z: 0,
		},
	})
	s.subs.emit(motion.RawSample{
		Kind:  motion.Accelerometer,
		Time:  t,
		Value: motion.Vector3{X: 0, Y: 0, Z: 9.81},
	})
	// Horizontal field rotating once a minute.
	heading := math.Mod(elapsed*2*math.Pi/60, 2*math.Pi)
	s.subs.emit(motion.RawSample{
		Kind:  motion.Magnetometer,
		Time:  t,
		Value: motion.Vector3{X: -20 * math.Sin(heading), Y: 20 * math.Cos(heading), Z: -40},
	})
}
