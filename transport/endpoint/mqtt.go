package endpoint

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Alia5/motionpad/transport"
)

// FeedbackSuffix is appended to the frame topic to form the topic the host
// publishes feedback on.
const FeedbackSuffix = "/feedback"

// mqttStream publishes each Write as one QoS 0 message and reads feedback
// messages as a byte stream.
type mqttStream struct {
	client mqtt.Client
	topic  string
	peer   string

	in   chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	deadline time.Time
	pending  []byte
	lost     error
}

func (d *Dialer) dialMQTT(ctx context.Context, ep Endpoint) (transport.Stream, error) {
	s := &mqttStream{
		topic: ep.Topic,
		peer:  ep.Address + "/" + ep.Topic,
		in:    make(chan []byte, 16),
		done:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + ep.Address).
		SetClientID(d.cfg.MQTTClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		d.logger.Warn("mqtt connection lost", "broker", ep.Address, "error", err)
		s.shutdown(err)
	})
	s.client = mqtt.NewClient(opts)

	if err := waitToken(ctx, s.client.Connect()); err != nil {
		s.client.Disconnect(0)
		return nil, err
	}
	sub := s.client.Subscribe(ep.Topic+FeedbackSuffix, 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case s.in <- append([]byte(nil), m.Payload()...):
		case <-s.done:
		default:
			d.logger.Warn("dropping mqtt feedback, reader is behind", "topic", m.Topic())
		}
	})
	if err := waitToken(ctx, sub); err != nil {
		s.client.Disconnect(0)
		return nil, err
	}
	return s, nil
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *mqttStream) PeerName() string { return s.peer }

func (s *mqttStream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *mqttStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()

	tok := s.client.Publish(s.topic, 0, false, append([]byte(nil), p...))
	if deadline.IsZero() {
		tok.Wait()
	} else if !tok.WaitTimeout(time.Until(deadline)) {
		return 0, os.ErrDeadlineExceeded
	}
	if err := tok.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *mqttStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	select {
	case msg := <-s.in:
		n := copy(p, msg)
		s.mu.Lock()
		s.pending = msg[n:]
		s.mu.Unlock()
		return n, nil
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lost != nil {
			return 0, s.lost
		}
		return 0, io.EOF
	}
}

func (s *mqttStream) shutdown(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.lost = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *mqttStream) Close() error {
	s.shutdown(nil)
	s.client.Disconnect(250)
	return nil
}
