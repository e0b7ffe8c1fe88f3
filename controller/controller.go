// Package controller wires the motion pipeline to a transport session and
// exposes the state a user interface needs: connection status text, the
// connection type, the last sensor reading and calibration feedback.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/motionpad/calibration"
	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/mapper"
	"github.com/Alia5/motionpad/motion"
	"github.com/Alia5/motionpad/scheduler"
	"github.com/Alia5/motionpad/transport"
	"github.com/Alia5/motionpad/transport/endpoint"
)

// ErrNoSample is returned by Calibrate before the gyroscope has reported.
var ErrNoSample = errors.New("no gyroscope sample yet")

// Status is a snapshot of what the user should see.
type Status struct {
	State          transport.State
	Text           string
	ConnectionType string
	Endpoint       string
	Peer           string
	Calibrated     bool
	Offset         calibration.Offset
	FeedbackBytes  uint64
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Codec     frame.Codec
	Mapper    mapper.Config
	Session   transport.Config
	Scheduler scheduler.Config
	Logger    *slog.Logger
	Raw       log.RawLogger
}

type Controller struct {
	source  motion.Source
	latest  *motion.Latest
	calib   *calibration.State
	session *transport.Session
	sched   *scheduler.Scheduler
	logger  *slog.Logger
	kinds   []motion.SensorKind

	mu     sync.Mutex
	status Status

	listenMu  sync.Mutex
	listeners []func(Status)
}

var _ transport.Observer = (*Controller)(nil)

// New subscribes to every sensor kind source can back and builds the
// pipeline. Nothing runs until Run is called.
func New(source motion.Source, dialer transport.Dialer, opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Codec == nil {
		opts.Codec = frame.Binary{}
	}
	if opts.Mapper == (mapper.Config{}) {
		opts.Mapper = mapper.DefaultConfig()
	}
	if opts.Session == (transport.Config{}) {
		opts.Session = transport.DefaultConfig()
	}
	m, err := mapper.New(opts.Mapper)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		source: source,
		latest: motion.NewLatest(),
		calib:  calibration.New(),
		logger: opts.Logger,
		status: Status{State: transport.Idle, Text: "Disconnected"},
	}
	c.kinds, err = c.latest.Attach(source, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("subscribe to sensors: %w", err)
	}
	if !c.HasSensor(motion.Gyroscope) {
		opts.Logger.Warn("no gyroscope, sticks will stay centred")
	}
	c.session = transport.NewSession(dialer, opts.Codec, c, opts.Session, opts.Logger, opts.Raw)
	c.sched = scheduler.New(c.latest, c.calib, m, c.session, opts.Scheduler, opts.Logger)
	return c, nil
}

// Run drives the sensor source and the frame scheduler until ctx is done or
// the source fails, then closes any connection.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sensor source: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return c.sched.Run(ctx)
	})
	err := g.Wait()
	c.session.Disconnect()
	return err
}

// Connect starts connecting to ep in the background.
func (c *Controller) Connect(ep string) error {
	if err := c.session.Connect(ep); err != nil {
		return err
	}
	label := endpoint.Label(ep)
	c.update(func(s *Status) {
		s.ConnectionType = label
		s.Endpoint = ep
		// The attempt may already have reported its outcome.
		if c.session.State() == transport.Connecting {
			s.State = transport.Connecting
			s.Text = fmt.Sprintf("Connecting to %s (%s)", ep, label)
			s.Peer = ""
		}
	})
	return nil
}

func (c *Controller) Disconnect() {
	c.session.Disconnect()
}

// Acknowledge clears a failure so Connect may be called again.
func (c *Controller) Acknowledge() {
	c.session.Acknowledge()
	c.update(func(s *Status) {
		if s.State == transport.Failed && c.session.State() == transport.Idle {
			s.State = transport.Idle
			s.Text = "Disconnected"
		}
	})
}

// Calibrate takes the latest gyroscope sample as the new zero.
func (c *Controller) Calibrate() (calibration.Offset, error) {
	sample, ok := c.latest.Get(motion.Gyroscope)
	if !ok {
		return calibration.Offset{}, ErrNoSample
	}
	c.calib.Calibrate(sample)
	off := c.calib.Offset()
	c.logger.Info("calibrated", "offset", off)
	c.update(func(s *Status) {
		s.Calibrated = true
		s.Offset = off
	})
	return off, nil
}

func (c *Controller) ResetCalibration() {
	c.calib.Reset()
	c.logger.Info("calibration reset")
	c.update(func(s *Status) {
		s.Calibrated = false
		s.Offset = calibration.Offset{}
	})
}

// LastReading returns the latest gyroscope sample.
func (c *Controller) LastReading() (motion.RawSample, bool) {
	return c.latest.Get(motion.Gyroscope)
}

// HasSensor reports whether the source backs kind.
func (c *Controller) HasSensor(kind motion.SensorKind) bool {
	for _, k := range c.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Stats() scheduler.Stats {
	return c.sched.Stats()
}

// OnStatus registers fn to receive every status change. fn must not call
// Connect, Disconnect or Acknowledge synchronously.
func (c *Controller) OnStatus(fn func(Status)) {
	c.listenMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenMu.Unlock()
}

func (c *Controller) update(fn func(*Status)) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	c.mu.Lock()
	fn(&c.status)
	snap := c.status
	c.mu.Unlock()

	for _, l := range c.listeners {
		l(snap)
	}
}

func (c *Controller) OnConnected(peer string) {
	c.update(func(s *Status) {
		s.State = transport.Connected
		s.Peer = peer
		s.Text = fmt.Sprintf("Connected to %s", peer)
	})
}

func (c *Controller) OnDisconnected() {
	c.update(func(s *Status) {
		s.State = transport.Idle
		s.Peer = ""
		s.Text = "Disconnected"
	})
}

func (c *Controller) OnDataReceived(data []byte) {
	c.logger.Debug("data from host", "bytes", len(data))
	c.mu.Lock()
	c.status.FeedbackBytes += uint64(len(data))
	c.mu.Unlock()
}

func (c *Controller) OnError(message string) {
	c.update(func(s *Status) {
		s.State = transport.Failed
		s.Peer = ""
		s.Text = "Connection failed: " + message
	})
}
