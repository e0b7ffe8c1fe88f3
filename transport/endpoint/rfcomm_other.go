//go:build !linux

package endpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Alia5/motionpad/transport"
)

func dialRFCOMM(_ context.Context, ep Endpoint, _ *slog.Logger) (transport.Stream, error) {
	return nil, fmt.Errorf("%w: rfcomm sockets need linux; bind %s to a tty and use serial://", ErrUnsupported, ep.Address)
}
