package endpoint

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Alia5/motionpad/internal/auth"
	"github.com/Alia5/motionpad/transport"
)

type netStream struct {
	net.Conn
	peer string
}

func (s *netStream) PeerName() string { return s.peer }

func (d *Dialer) dialTCP(ctx context.Context, ep Endpoint) (transport.Stream, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			d.logger.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}
	peer := conn.RemoteAddr().String()

	if d.cfg.Password == "" {
		return &netStream{Conn: conn, peer: peer}, nil
	}

	key, err := auth.DeriveKey(d.cfg.Password)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Unblock the handshake when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	secured, err := auth.Client(conn, key)
	if !stop() {
		_ = conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	return &netStream{Conn: secured, peer: peer}, nil
}
