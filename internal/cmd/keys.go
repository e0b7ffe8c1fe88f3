package cmd

import (
	"errors"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/Alia5/motionpad/calibration"
	"github.com/Alia5/motionpad/controller"
	"github.com/Alia5/motionpad/transport"
)

const keyHelp = "keys: [c]alibrate [r]eset calibration [d]isconnect [a]cknowledge+reconnect [s]tatus [q]uit"

var errNotTerminal = errors.New("stdin is not a terminal")

// keyTarget is the part of controller.Controller driven by key presses.
type keyTarget interface {
	Calibrate() (calibration.Offset, error)
	ResetCalibration()
	Connect(endpoint string) error
	Disconnect()
	Acknowledge()
	Status() controller.Status
}

// startKeys switches f to unbuffered, unechoed input and streams key presses.
// The returned function restores the terminal.
func startKeys(f *os.File) (<-chan byte, func(), error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil, errNotTerminal
	}
	old, err := term.GetState(fd)
	if err != nil {
		return nil, nil, err
	}
	if err := cbreak(fd); err != nil {
		return nil, nil, err
	}

	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := f.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return keys, func() { _ = term.Restore(fd, old) }, nil
}

// handleKey applies one key press and reports whether it asks to quit.
func handleKey(c keyTarget, key byte, endpoint string, logger *slog.Logger) bool {
	switch key {
	case 'c', 'C':
		off, err := c.Calibrate()
		if err != nil {
			logger.Warn("cannot calibrate", "error", err)
			return false
		}
		logger.Info("calibration complete", "offset", off)
	case 'r', 'R':
		c.ResetCalibration()
	case 'd', 'D':
		c.Disconnect()
	case 'a', 'A':
		c.Acknowledge()
		if endpoint == "" {
			return false
		}
		if st := c.Status().State; st == transport.Idle {
			if err := c.Connect(endpoint); err != nil {
				logger.Warn("cannot reconnect", "error", err)
			}
		}
	case 's', 'S':
		s := c.Status()
		logger.Info("status", "state", s.State, "text", s.Text, "type", s.ConnectionType, "calibrated", s.Calibrated)
	case 'q', 'Q', 0x03, 0x04:
		return true
	case '?', 'h':
		logger.Info(keyHelp)
	}
	return false
}
