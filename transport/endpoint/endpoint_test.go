package endpoint_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/motionpad/internal/auth"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/transport/endpoint"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected endpoint.Endpoint
		label    string
		wantErr  bool
	}{
		{
			name:     "rfcomm default channel",
			input:    "rfcomm://aa:bb:cc:dd:ee:ff",
			expected: endpoint.Endpoint{Scheme: "rfcomm", Address: "AA:BB:CC:DD:EE:FF", Channel: 1},
			label:    "Bluetooth",
		},
		{
			name:     "rfcomm explicit channel",
			input:    "rfcomm://00:1A:7D:DA:71:13/5",
			expected: endpoint.Endpoint{Scheme: "rfcomm", Address: "00:1A:7D:DA:71:13", Channel: 5},
			label:    "Bluetooth",
		},
		{name: "rfcomm channel out of range", input: "rfcomm://00:1A:7D:DA:71:13/31", wantErr: true},
		{name: "rfcomm bad mac", input: "rfcomm://00:1A:7D:DA:71", wantErr: true},
		{
			name:     "serial default baud",
			input:    "serial:///dev/rfcomm0",
			expected: endpoint.Endpoint{Scheme: "serial", Address: "/dev/rfcomm0", Baud: 115200},
			label:    "Serial",
		},
		{
			name:     "serial baud",
			input:    "serial:///dev/ttyACM0?baud=9600",
			expected: endpoint.Endpoint{Scheme: "serial", Address: "/dev/ttyACM0", Baud: 9600},
			label:    "Serial",
		},
		{name: "serial bad baud", input: "serial:///dev/ttyACM0?baud=fast", wantErr: true},
		{
			name:     "tcp",
			input:    "tcp://192.168.1.20:3333",
			expected: endpoint.Endpoint{Scheme: "tcp", Address: "192.168.1.20:3333"},
			label:    "Wi-Fi",
		},
		{name: "tcp without port", input: "tcp://192.168.1.20", wantErr: true},
		{
			name:     "websocket",
			input:    "ws://host:8080/pad",
			expected: endpoint.Endpoint{Scheme: "ws", Address: "ws://host:8080/pad"},
			label:    "WebSocket",
		},
		{
			name:     "mqtt default port",
			input:    "mqtt://broker/motionpad/frames",
			expected: endpoint.Endpoint{Scheme: "mqtt", Address: "broker:1883", Topic: "motionpad/frames"},
			label:    "MQTT",
		},
		{name: "mqtt without topic", input: "mqtt://broker:1883", wantErr: true},
		{name: "no scheme", input: "192.168.1.20:3333", wantErr: true},
		{name: "unknown scheme", input: "udp://host:1", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := endpoint.Parse(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, endpoint.ErrInvalidEndpoint)
				assert.Equal(t, "Unknown", endpoint.Label(tc.input))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ep)
			assert.Equal(t, tc.label, ep.Label())
			assert.Equal(t, tc.label, endpoint.Label(tc.input))
		})
	}
}

func TestParseBDAddr_Reversed(t *testing.T) {
	addr, err := endpoint.ParseBDAddr("00:1A:7D:DA:71:13")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00}, addr)

	_, err = endpoint.ParseBDAddr("00:1A:7D:DA:71:ZZ")
	assert.ErrorIs(t, err, endpoint.ErrInvalidEndpoint)
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestDial_TCP(t *testing.T) {
	ln := listen(t)
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	d := endpoint.NewDialer(endpoint.Config{}, log.Discard())
	s, err := d.Dial(context.Background(), "tcp://"+ln.Addr().String())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, ln.Addr().String(), s.PeerName())

	host := <-accepted
	defer host.Close()
	_, err = s.Write([]byte("frame"))
	require.NoError(t, err)
	got := make([]byte, 5)
	_, err = io.ReadFull(host, got)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(got))
}

func TestDial_TCPAuthenticated(t *testing.T) {
	ln := listen(t)
	key, err := auth.DeriveKey("hunter2")
	require.NoError(t, err)

	type result struct {
		conn *auth.Conn
		err  error
	}
	accepted := make(chan result, 2)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			sc, err := auth.Server(c, bufio.NewReader(c), key)
			if err != nil {
				_ = c.Close()
			}
			accepted <- result{sc, err}
		}
	}()

	t.Run("right password", func(t *testing.T) {
		d := endpoint.NewDialer(endpoint.Config{Password: "hunter2"}, log.Discard())
		s, err := d.Dial(context.Background(), "tcp://"+ln.Addr().String())
		require.NoError(t, err)
		defer s.Close()

		r := <-accepted
		require.NoError(t, r.err)
		_, err = s.Write([]byte("sealed"))
		require.NoError(t, err)
		got := make([]byte, 6)
		_, err = io.ReadFull(r.conn, got)
		require.NoError(t, err)
		assert.Equal(t, "sealed", string(got))
	})

	t.Run("wrong password", func(t *testing.T) {
		d := endpoint.NewDialer(endpoint.Config{Password: "letmein"}, log.Discard())
		_, err := d.Dial(context.Background(), "tcp://"+ln.Addr().String())
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		assert.ErrorIs(t, (<-accepted).err, auth.ErrUnauthorized)
	})
}

func TestDial_TCPHandshakeCancelled(t *testing.T) {
	ln := listen(t)
	go func() {
		// Accept and never answer the handshake.
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			_, _ = io.Copy(io.Discard, c)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d := endpoint.NewDialer(endpoint.Config{Password: "hunter2"}, log.Discard())
	_, err := d.Dial(ctx, "tcp://"+ln.Addr().String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial_WebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mt, msg, err := conn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage {
			return
		}
		received <- msg
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ru"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("mble"))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	d := endpoint.NewDialer(endpoint.Config{}, log.Discard())
	s, err := d.Dial(context.Background(), "ws://"+strings.TrimPrefix(srv.URL, "http://")+"/pad")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, <-received)

	got := make([]byte, 6)
	_, err = io.ReadFull(s, got)
	require.NoError(t, err)
	assert.Equal(t, "rumble", string(got))
}

func TestDial_InvalidEndpoint(t *testing.T) {
	d := endpoint.NewDialer(endpoint.Config{}, nil)
	_, err := d.Dial(context.Background(), "carrier-pigeon://coop")
	assert.ErrorIs(t, err, endpoint.ErrInvalidEndpoint)
}
