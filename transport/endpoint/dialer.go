package endpoint

import (
	"context"
	"log/slog"

	"github.com/Alia5/motionpad/transport"
)

// Config represents the per-medium dial options.
type Config struct {
	Password     string `help:"Pre-shared password for tcp endpoints; empty disables authentication" env:"MOTIONPAD_PASSWORD"`
	MQTTClientID string `help:"MQTT client identifier" default:"motionpad" env:"MOTIONPAD_MQTT_CLIENT_ID"`
}

// Dialer implements transport.Dialer for every supported scheme.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "motionpad"
	}
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Stream, error) {
	ep, err := Parse(endpoint)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("dialing", "scheme", ep.Scheme, "address", ep.Address)

	switch ep.Scheme {
	case SchemeRFCOMM:
		return dialRFCOMM(ctx, ep, d.logger)
	case SchemeSerial:
		return dialSerial(ctx, ep)
	case SchemeTCP:
		return d.dialTCP(ctx, ep)
	case SchemeWS, SchemeWSS:
		return dialWebSocket(ctx, ep)
	default:
		return d.dialMQTT(ctx, ep)
	}
}
