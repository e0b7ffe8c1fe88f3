package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alia5/motionpad/controller"
	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/mapper"
	"github.com/Alia5/motionpad/scheduler"
	"github.com/Alia5/motionpad/transport"
	"github.com/Alia5/motionpad/transport/endpoint"
)

type Run struct {
	Endpoint    string           `help:"Host to stream to: rfcomm://MAC[/ch], serial:///dev/tty, tcp://host:port, ws://host/path, mqtt://broker/topic" env:"MOTIONPAD_ENDPOINT"`
	Codec       string           `help:"Wire format" enum:"binary,json" default:"binary" env:"MOTIONPAD_CODEC"`
	Interactive bool             `help:"Read single-key commands from the terminal" default:"true" negatable:"" env:"MOTIONPAD_INTERACTIVE"`
	Source      SourceConfig     `embed:"" prefix:"source."`
	Mapper      mapper.Config    `embed:"" prefix:"mapper."`
	Session     transport.Config `embed:"" prefix:"session."`
	Scheduler   scheduler.Config `embed:"" prefix:"scheduler."`
	Dial        endpoint.Config  `embed:"" prefix:"dial."`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, rawLogger)
}

func (r *Run) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	codec, err := frame.CodecByName(r.Codec)
	if err != nil {
		return err
	}
	src, err := r.Source.Open(logger)
	if err != nil {
		return err
	}

	c, err := controller.New(src, endpoint.NewDialer(r.Dial, logger), controller.Options{
		Codec:     codec,
		Mapper:    r.Mapper,
		Session:   r.Session,
		Scheduler: r.Scheduler,
		Logger:    logger,
		Raw:       rawLogger,
	})
	if err != nil {
		return err
	}
	c.OnStatus(func(s controller.Status) {
		logger.Info(s.Text, "state", s.State, "type", s.ConnectionType)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.Endpoint != "" {
		if err := c.Connect(r.Endpoint); err != nil {
			return err
		}
	} else {
		logger.Warn("no endpoint set, frames are computed and discarded")
	}

	if r.Interactive {
		keys, restore, err := startKeys(os.Stdin)
		switch {
		case err == nil:
			defer restore()
			logger.Info(keyHelp)
			go func() {
				for k := range keys {
					if handleKey(c, k, r.Endpoint, logger) {
						cancel()
						return
					}
				}
			}()
		case errors.Is(err, errNotTerminal):
			logger.Debug("interactive keys disabled", "reason", err)
		default:
			logger.Warn("interactive keys disabled", "error", err)
		}
	}

	err = c.Run(ctx)
	st := c.Stats()
	logger.Info("stopped", "frames_sent", st.Sent, "frames_discarded", st.Discarded, "send_failures", st.Failed)
	return err
}
