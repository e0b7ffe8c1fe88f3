// Package receiver is a reference host: it accepts one controller at a time
// over TCP and decodes its control frames.
package receiver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/auth"
	"github.com/Alia5/motionpad/internal/log"
)

var (
	ErrBusy         = errors.New("a controller is already connected")
	ErrNoController = errors.New("no controller connected")
)

// Config represents the listener settings.
type Config struct {
	Addr       string `help:"Address to listen on for controllers" default:":3333" env:"MOTIONPAD_RECEIVE_ADDR"`
	Password   string `help:"Pre-shared password; controllers must authenticate when set" env:"MOTIONPAD_PASSWORD"`
	AllowPlain bool   `help:"Also accept unauthenticated controllers when a password is set" env:"MOTIONPAD_ALLOW_PLAIN"`
}

// Handler is called for every valid frame, in arrival order.
type Handler func(peer string, f *frame.ControlFrame)

type Server struct {
	cfg     Config
	key     []byte
	codec   frame.Codec
	handler Handler
	logger  *slog.Logger
	raw     log.RawLogger

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	active net.Conn
	peer   string
	wmu    sync.Mutex

	frames  atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, codec frame.Codec, handler Handler, logger *slog.Logger, raw log.RawLogger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	s := &Server{cfg: cfg, codec: codec, handler: handler, logger: logger, raw: raw}
	if cfg.Password != "" {
		key, err := auth.DeriveKey(cfg.Password)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("waiting for controller", "addr", ln.Addr().String(), "codec", s.codec.Name(), "auth", s.key != nil)
	s.wg.Add(1)
	go s.serve()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting, drops the active controller and waits for all
// connection goroutines.
func (s *Server) Close() {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Lock()
	if s.active != nil {
		_ = s.active.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Frames returns the number of frames handled and dropped as invalid.
func (s *Server) Frames() (handled, dropped uint64) {
	return s.frames.Load(), s.dropped.Load()
}

// Peer returns the connected controller's address, or "".
func (s *Server) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Send writes feedback bytes to the connected controller.
func (s *Server) Send(data []byte) error {
	s.mu.Lock()
	conn := s.active
	s.mu.Unlock()
	if conn == nil {
		return ErrNoController
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := conn.Write(data); err != nil {
		return err
	}
	s.raw.Log(false, data)
	return nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("receiver stopped")
				return
			}
			s.logger.Error("accept error", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleConn(c)
	}
}

func (s *Server) claim(conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return ErrBusy
	}
	s.active = conn
	s.peer = conn.RemoteAddr().String()
	return nil
}

func (s *Server) release() {
	s.mu.Lock()
	s.active = nil
	s.peer = ""
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	connLogger := s.logger.With("remote", peer)

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if err := s.claim(conn); err != nil {
		connLogger.Warn("rejecting controller", "error", err)
		return
	}
	defer s.release()

	r := bufio.NewReader(conn)
	stream, err := s.secure(conn, r)
	if err != nil {
		connLogger.Warn("rejecting controller", "error", err)
		return
	}
	if stream != conn {
		s.mu.Lock()
		s.active = stream
		s.mu.Unlock()
		r = bufio.NewReader(stream)
	}
	connLogger.Info("controller connected")

	for {
		f, err := s.codec.Decode(r)
		if err != nil {
			if errors.Is(err, frame.ErrMalformed) {
				s.dropped.Add(1)
				connLogger.Warn("dropping malformed frame", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				connLogger.Info("controller disconnected")
			} else {
				connLogger.Warn("controller link lost", "error", err)
			}
			return
		}
		if b, err := f.MarshalBinary(); err == nil {
			s.raw.Log(true, b)
		}
		if err := f.Validate(); err != nil {
			s.dropped.Add(1)
			connLogger.Warn("dropping invalid frame", "error", err)
			continue
		}
		s.frames.Add(1)
		if s.handler != nil {
			s.handler(peer, f)
		}
	}
}

// secure runs the auth handshake when the controller starts one, and enforces
// the password policy otherwise.
func (s *Server) secure(conn net.Conn, r *bufio.Reader) (net.Conn, error) {
	isHandshake, err := auth.IsHandshake(r)
	if err != nil {
		return nil, fmt.Errorf("read first bytes: %w", err)
	}
	switch {
	case isHandshake && s.key == nil:
		return nil, errors.New("controller wants authentication but no password is set")
	case isHandshake:
		return auth.Server(conn, r, s.key)
	case s.key != nil && !s.cfg.AllowPlain:
		return nil, errors.New("unauthenticated controller")
	default:
		return &bufConn{Conn: conn, r: r}, nil
	}
}

// bufConn reads through the reader that already buffered the first bytes.
type bufConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufConn) Read(p []byte) (int, error) { return b.r.Read(p) }
