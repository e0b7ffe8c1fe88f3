// Package scheduler drives the fixed-rate sample, map and send loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Alia5/motionpad/calibration"
	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/mapper"
	"github.com/Alia5/motionpad/motion"
	"github.com/Alia5/motionpad/transport"
)

const DefaultPeriod = 16 * time.Millisecond

// Sender is the part of transport.Session the scheduler uses.
type Sender interface {
	State() transport.State
	Send(f *frame.ControlFrame) error
}

// Config represents the scheduler cadence.
type Config struct {
	Period time.Duration `help:"Interval between control frames" default:"16ms" env:"MOTIONPAD_FRAME_PERIOD"`
}

// Stats counts what happened to the frames built so far.
type Stats struct {
	Ticks     uint64
	Sent      uint64
	Discarded uint64
	Failed    uint64
}

// Scheduler builds one frame per period from the latest samples and hands it
// to the sender while the sender is connected.
type Scheduler struct {
	samples *motion.Latest
	calib   *calibration.State
	mapper  *mapper.Mapper
	sender  Sender
	period  time.Duration
	logger  *slog.Logger
	epoch   time.Time

	ticks, sent, discarded, failed atomic.Uint64
}

func New(samples *motion.Latest, calib *calibration.State, m *mapper.Mapper, sender Sender, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		samples: samples,
		calib:   calib,
		mapper:  m,
		sender:  sender,
		period:  cfg.Period,
		logger:  logger,
		epoch:   time.Now(),
	}
}

// Frame builds the frame for the current instant. Sticks stay centred until a
// gyroscope sample exists; azimuth stays 0 unless enabled and both the
// accelerometer and magnetometer have reported.
func (s *Scheduler) Frame() frame.ControlFrame {
	f := frame.ControlFrame{Timestamp: uint64(time.Since(s.epoch).Milliseconds())}

	if gyro, ok := s.samples.Get(motion.Gyroscope); ok {
		x, y := s.mapper.Map(gyro, s.calib.Offset())
		f.LeftX = frame.ClampStick(x)
		f.LeftY = frame.ClampStick(y)
	}

	if s.mapper.AzimuthEnabled() {
		accel, okA := s.samples.Get(motion.Accelerometer)
		mag, okM := s.samples.Get(motion.Magnetometer)
		if okA && okM {
			if az, ok := mapper.Heading(accel.Value, mag.Value); ok {
				f.Azimuth = float32(az)
			}
		}
	}
	return f
}

// Tick builds a frame and sends it if the sender is connected. Send failures
// are counted and logged; the session reports them to its observer.
func (s *Scheduler) Tick() {
	s.ticks.Add(1)
	f := s.Frame()

	if s.sender.State() != transport.Connected {
		s.discarded.Add(1)
		return
	}

	err := s.sender.Send(&f)
	switch {
	case err == nil:
		s.sent.Add(1)
		s.logger.Log(context.Background(), log.LevelTrace, "frame sent",
			"leftX", f.LeftX, "leftY", f.LeftY, "azimuth", f.Azimuth, "timestamp", f.Timestamp)
	case errors.Is(err, transport.ErrNotConnected):
		s.discarded.Add(1)
	default:
		s.failed.Add(1)
		s.logger.Warn("frame send failed", "error", err)
	}
}

// Run ticks every period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.logger.Debug("scheduler started", "period", s.period)
	for {
		select {
		case <-ctx.Done():
			st := s.Stats()
			s.logger.Debug("scheduler stopped", "ticks", st.Ticks, "sent", st.Sent, "discarded", st.Discarded, "failed", st.Failed)
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Sent:      s.sent.Load(),
		Discarded: s.discarded.Load(),
		Failed:    s.failed.Load(),
	}
}
