// Package endpoint turns endpoint strings into open transport streams.
//
//	rfcomm://AA:BB:CC:DD:EE:FF[/channel]   Bluetooth RFCOMM (Linux)
//	serial:///dev/rfcomm0[?baud=115200]     serial port or bound RFCOMM tty
//	tcp://host:port                         TCP, optionally authenticated
//	ws://host:port/path, wss://...          WebSocket, one frame per message
//	mqtt://broker[:1883]/topic              MQTT, frames published to topic
package endpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	SchemeRFCOMM = "rfcomm"
	SchemeSerial = "serial"
	SchemeTCP    = "tcp"
	SchemeWS     = "ws"
	SchemeWSS    = "wss"
	SchemeMQTT   = "mqtt"

	DefaultRFCOMMChannel = 1
	DefaultBaudRate      = 115200
	DefaultMQTTPort      = "1883"
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrUnsupported     = errors.New("endpoint not supported on this platform")
)

// Endpoint is a parsed endpoint string.
type Endpoint struct {
	Scheme string
	// Address is the MAC for rfcomm, the device path for serial, host:port
	// for tcp and mqtt, and the full URL for ws/wss.
	Address string
	Channel uint8
	Baud    uint
	Topic   string
}

// Parse validates s and splits it into its parts.
func Parse(s string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidEndpoint, s)
	}
	scheme = strings.ToLower(scheme)

	if scheme == SchemeRFCOMM {
		return parseRFCOMM(rest)
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	switch scheme {
	case SchemeSerial:
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("%w: serial endpoint needs a device path", ErrInvalidEndpoint)
		}
		ep := Endpoint{Scheme: scheme, Address: u.Path, Baud: DefaultBaudRate}
		if b := u.Query().Get("baud"); b != "" {
			baud, err := strconv.ParseUint(b, 10, 32)
			if err != nil || baud == 0 {
				return Endpoint{}, fmt.Errorf("%w: bad baud rate %q", ErrInvalidEndpoint, b)
			}
			ep.Baud = uint(baud)
		}
		return ep, nil

	case SchemeTCP:
		if u.Hostname() == "" || u.Port() == "" {
			return Endpoint{}, fmt.Errorf("%w: tcp endpoint needs host and port", ErrInvalidEndpoint)
		}
		return Endpoint{Scheme: scheme, Address: u.Host}, nil

	case SchemeWS, SchemeWSS:
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("%w: websocket endpoint needs a host", ErrInvalidEndpoint)
		}
		u.Scheme = scheme
		return Endpoint{Scheme: scheme, Address: u.String()}, nil

	case SchemeMQTT:
		topic := strings.TrimPrefix(u.Path, "/")
		if u.Hostname() == "" || topic == "" {
			return Endpoint{}, fmt.Errorf("%w: mqtt endpoint needs broker and topic", ErrInvalidEndpoint)
		}
		port := u.Port()
		if port == "" {
			port = DefaultMQTTPort
		}
		return Endpoint{Scheme: scheme, Address: u.Hostname() + ":" + port, Topic: topic}, nil
	}
	return Endpoint{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, scheme)
}

func parseRFCOMM(rest string) (Endpoint, error) {
	mac, ch, hasCh := strings.Cut(rest, "/")
	if _, err := ParseBDAddr(mac); err != nil {
		return Endpoint{}, err
	}
	ep := Endpoint{Scheme: SchemeRFCOMM, Address: strings.ToUpper(mac), Channel: DefaultRFCOMMChannel}
	if hasCh {
		n, err := strconv.ParseUint(ch, 10, 8)
		if err != nil || n < 1 || n > 30 {
			return Endpoint{}, fmt.Errorf("%w: rfcomm channel %q not in 1-30", ErrInvalidEndpoint, ch)
		}
		ep.Channel = uint8(n)
	}
	return ep, nil
}

// ParseBDAddr parses a colon separated Bluetooth address. The result is in
// the little-endian order the kernel expects in a socket address.
func ParseBDAddr(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("%w: bad bluetooth address %q", ErrInvalidEndpoint, s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return out, fmt.Errorf("%w: bad bluetooth address %q", ErrInvalidEndpoint, s)
		}
		out[5-i] = b[0]
	}
	return out, nil
}

// Label is the connection type shown to the user.
func (e Endpoint) Label() string {
	switch e.Scheme {
	case SchemeRFCOMM:
		return "Bluetooth"
	case SchemeSerial:
		return "Serial"
	case SchemeTCP:
		return "Wi-Fi"
	case SchemeWS, SchemeWSS:
		return "WebSocket"
	case SchemeMQTT:
		return "MQTT"
	default:
		return "Unknown"
	}
}

// Label parses s and returns its connection type, or "Unknown".
func Label(s string) string {
	ep, err := Parse(s)
	if err != nil {
		return "Unknown"
	}
	return ep.Label()
}
