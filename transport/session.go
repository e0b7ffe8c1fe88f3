package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/log"
)

// Config represents the session timeouts.
type Config struct {
	ConnectTimeout time.Duration `help:"Give up a connection attempt after this long" default:"10s" env:"MOTIONPAD_CONNECT_TIMEOUT"`
	WriteTimeout   time.Duration `help:"Treat a frame write that takes longer than this as a link failure" default:"100ms" env:"MOTIONPAD_WRITE_TIMEOUT"`
}

// DefaultConfig returns the stock timeouts.
func DefaultConfig() Config {
	return Config{ConnectTimeout: 10 * time.Second, WriteTimeout: 100 * time.Millisecond}
}

// Session owns at most one connection to the host.
//
// Every connection attempt and established link carries a generation number.
// Connect, Disconnect and failures bump the generation, so results and
// callbacks belonging to an older generation are dropped.
type Session struct {
	dialer   Dialer
	codec    frame.Codec
	observer Observer
	cfg      Config
	logger   *slog.Logger
	raw      log.RawLogger

	// notifyMu is held across a state change and the callback reporting it,
	// so a superseded generation can never report after it was cancelled.
	notifyMu sync.Mutex
	// sendMu keeps frames on the wire in the order Send was called.
	sendMu sync.Mutex

	mu       sync.Mutex
	state    State
	gen      uint64
	cancel   context.CancelFunc
	stream   Stream
	endpoint string
	peer     string
	failure  error
	lastTS   uint64
}

// NewSession creates an idle session. observer may be nil.
func NewSession(dialer Dialer, codec frame.Codec, observer Observer, cfg Config, logger *slog.Logger, raw log.RawLogger) *Session {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Session{
		dialer:   dialer,
		codec:    codec,
		observer: observer,
		cfg:      cfg,
		logger:   logger,
		raw:      raw,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the error that moved the session to Failed, or nil.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Endpoint returns the endpoint of the current attempt or link.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Peer returns the connected peer's display name.
func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Connect starts an attempt to reach endpoint in the background and returns
// immediately. A pending attempt is cancelled and an established link is
// closed first. Connect fails with ErrNotAcknowledged while the session is
// Failed.
func (s *Session) Connect(endpoint string) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.state == Failed {
		s.mu.Unlock()
		return ErrNotAcknowledged
	}
	prev, wasConnected := s.detachLocked()
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = Connecting
	s.endpoint = endpoint
	s.peer = ""
	s.mu.Unlock()

	s.closeStream(prev)
	if wasConnected {
		s.observer.OnDisconnected()
	}

	s.logger.Info("connecting", "endpoint", endpoint)
	go s.attempt(ctx, gen, endpoint)
	return nil
}

// Disconnect cancels a pending attempt or closes the established link and
// returns to Idle. It is a no-op in any other state.
func (s *Session) Disconnect() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.state != Connecting && s.state != Connected {
		s.mu.Unlock()
		return
	}
	stream, _ := s.detachLocked()
	s.state = Disconnecting
	s.mu.Unlock()

	s.closeStream(stream)

	s.mu.Lock()
	endpoint := s.endpoint
	s.state = Idle
	s.endpoint = ""
	s.peer = ""
	s.mu.Unlock()

	s.logger.Info("disconnected", "endpoint", endpoint)
	s.observer.OnDisconnected()
}

// Acknowledge clears a failure and returns the session to Idle. It is a no-op
// unless the session is Failed.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Failed {
		return
	}
	s.state = Idle
	s.failure = nil
	s.endpoint = ""
}

// Send encodes f and writes it to the link. The write is bounded by the
// configured write timeout; a write error or timeout moves the session to
// Failed. Timestamps lower than the last sent one are raised to it.
func (s *Session) Send(f *frame.ControlFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != Connected || s.stream == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	stream, gen := s.stream, s.gen
	out := *f
	if out.Timestamp < s.lastTS {
		out.Timestamp = s.lastTS
	}
	s.lastTS = out.Timestamp
	s.mu.Unlock()

	data, err := s.codec.Encode(&out)
	if err != nil {
		s.logger.Warn("dropping frame", "error", err)
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if s.cfg.WriteTimeout > 0 {
		if err := stream.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			s.logger.Debug("stream does not support write deadlines", "error", err)
		}
	}
	if _, err := stream.Write(data); err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		s.fail(gen, err)
		return err
	}
	s.raw.Log(false, data)
	return nil
}

// detachLocked starts a new generation and takes the current stream out of
// the session. s.mu must be held.
func (s *Session) detachLocked() (Stream, bool) {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	st := s.stream
	s.stream = nil
	return st, s.state == Connected
}

func (s *Session) attempt(ctx context.Context, gen uint64, endpoint string) {
	dialCtx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}
	stream, err := s.dialer.Dial(dialCtx, endpoint)

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		s.logger.Debug("discarding superseded connection attempt", "endpoint", endpoint)
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.state = Failed
		s.failure = fmt.Errorf("%w: %w", ErrConnectionAttemptFailed, err)
		failure := s.failure
		s.mu.Unlock()

		s.logger.Error("connection attempt failed", "endpoint", endpoint, "error", err)
		s.observer.OnError(failure.Error())
		return
	}
	s.stream = stream
	s.state = Connected
	s.peer = stream.PeerName()
	s.lastTS = 0
	peer := s.peer
	s.mu.Unlock()

	s.logger.Info("connected", "endpoint", endpoint, "peer", peer)
	s.observer.OnConnected(peer)
	go s.readLoop(gen, stream)
}

func (s *Session) readLoop(gen uint64, stream Stream) {
	buf := make([]byte, 512)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			s.raw.Log(true, data)
			s.deliver(gen, data)
		}
		if err != nil {
			s.fail(gen, fmt.Errorf("%w: %w", ErrConnectionLost, err))
			return
		}
	}
}

func (s *Session) deliver(gen uint64, data []byte) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.observer.OnDataReceived(data)
	}
}

// fail moves a Connected session of generation gen to Failed. Stale
// generations are ignored.
func (s *Session) fail(gen uint64, err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.state != Connected {
		s.mu.Unlock()
		return
	}
	stream, _ := s.detachLocked()
	s.state = Failed
	s.failure = err
	s.mu.Unlock()

	s.closeStream(stream)
	s.logger.Error("link failed", "error", err)
	s.observer.OnError(err.Error())
}

func (s *Session) closeStream(st Stream) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		s.logger.Warn("closing stream", "error", err)
	}
}
