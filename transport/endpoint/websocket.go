package endpoint

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alia5/motionpad/transport"
)

// wsStream sends each Write as one binary message and reads inbound messages
// back to back as a byte stream.
type wsStream struct {
	conn *websocket.Conn

	rmu sync.Mutex
	cur io.Reader
}

func dialWebSocket(ctx context.Context, ep Endpoint) (transport.Stream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, ep.Address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

func (s *wsStream) PeerName() string { return s.conn.RemoteAddr().String() }

func (s *wsStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		if s.cur == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.cur = r
		}
		n, err := s.cur.Read(p)
		if err == io.EOF {
			s.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
