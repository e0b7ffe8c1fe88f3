package endpoint

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/Alia5/motionpad/transport"
)

// serialStream adds write deadlines to a port that has none. A write that
// misses its deadline keeps running in the background until the port is
// closed; the session closes the port when a send fails.
type serialStream struct {
	port io.ReadWriteCloser
	peer string

	mu       sync.Mutex
	deadline time.Time
}

func dialSerial(ctx context.Context, ep Endpoint) (transport.Stream, error) {
	opts := serial.OpenOptions{
		PortName:        ep.Address,
		BaudRate:        ep.Baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	type result struct {
		port io.ReadWriteCloser
		err  error
	}
	done := make(chan result, 1)
	go func() {
		port, err := serial.Open(opts)
		done <- result{port, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &serialStream{port: r.port, peer: ep.Address}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.port.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (s *serialStream) PeerName() string { return s.peer }

func (s *serialStream) Read(p []byte) (int, error) { return s.port.Read(p) }

func (s *serialStream) Close() error { return s.port.Close() }

func (s *serialStream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *serialStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()
	if deadline.IsZero() {
		return s.port.Write(p)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := s.port.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, os.ErrDeadlineExceeded
	}
}
