// Package transport manages the single point-to-point link from the
// controller to the host: connection lifecycle, frame transmission and the
// observer callbacks that report both.
package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ServiceUUID is the Serial Port Profile identifier agreed with the host.
var ServiceUUID = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

// Stream is an open byte stream to the host. Session is its only user.
type Stream interface {
	io.ReadWriteCloser
	// SetWriteDeadline bounds the next Write calls.
	SetWriteDeadline(t time.Time) error
	// PeerName is a display name for the remote end.
	PeerName() string
}

// Dialer opens streams. Dial may block on handshake I/O and must return
// promptly once ctx is done.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Stream, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Stream, error) {
	return f(ctx, endpoint)
}

// Observer receives session events. Callbacks are serialized and must not
// call back into the Session synchronously.
type Observer interface {
	OnConnected(peerName string)
	OnDisconnected()
	OnDataReceived(data []byte)
	OnError(message string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnConnected(string)    {}
func (NopObserver) OnDisconnected()       {}
func (NopObserver) OnDataReceived([]byte) {}
func (NopObserver) OnError(string)        {}

// State is a session lifecycle state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("not connected")
	// ErrNotAcknowledged is returned by Connect while a failure is pending.
	ErrNotAcknowledged = errors.New("previous failure not acknowledged")
	// ErrConnectionAttemptFailed wraps handshake and lookup failures.
	ErrConnectionAttemptFailed = errors.New("connection attempt failed")
	// ErrSendFailed wraps write errors and write timeouts.
	ErrSendFailed = errors.New("send failed")
	// ErrConnectionLost wraps read errors on an established link.
	ErrConnectionLost = errors.New("connection lost")
	// ErrEncode wraps frames rejected by the codec. The frame is dropped and
	// the session state is unchanged.
	ErrEncode = errors.New("encode failed")
)
