//go:build linux

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Alia5/motionpad/transport"
)

type rfcommStream struct {
	*os.File
	peer string
}

func (s *rfcommStream) PeerName() string { return s.peer }

// dialRFCOMM opens a non-blocking RFCOMM socket so that reads, writes and the
// connect itself go through the runtime poller and honour deadlines.
func dialRFCOMM(ctx context.Context, ep Endpoint, logger *slog.Logger) (transport.Stream, error) {
	addr, err := ParseBDAddr(ep.Address)
	if err != nil {
		return nil, err
	}
	logger.Debug("opening rfcomm socket", "address", ep.Address, "channel", ep.Channel, "service", transport.ServiceUUID)

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: ep.Channel})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm connect: %w", err)
	}

	f := os.NewFile(uintptr(fd), "rfcomm:"+ep.Address)
	if err := waitConnected(ctx, f); err != nil {
		_ = f.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rfcomm connect: %w", err)
	}
	return &rfcommStream{File: f, peer: ep.Address}, nil
}

func waitConnected(ctx context.Context, f *os.File) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = f.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = f.SetWriteDeadline(time.Now()) })
	defer stop()

	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var connErr error
	err = rc.Write(func(fd uintptr) bool {
		n, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			connErr = err
			return true
		}
		switch errno := unix.Errno(n); errno {
		case 0:
			// Writable with no error still leaves in-progress sockets unconnected.
			if _, err := unix.Getpeername(int(fd)); err != nil {
				return false
			}
			return true
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return false
		default:
			connErr = errno
			return true
		}
	})
	if err != nil {
		return err
	}
	if connErr != nil {
		return connErr
	}
	return f.SetWriteDeadline(time.Time{})
}
