package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/auth"
	"github.com/Alia5/motionpad/internal/configpaths"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/internal/receiver"
)

const keyFileName = "motionpad.key.txt"

type Receive struct {
	Receiver    receiver.Config `embed:""`
	Codec       string          `help:"Wire format" enum:"binary,json" default:"binary" env:"MOTIONPAD_CODEC"`
	GenerateKey bool            `help:"Load or create a password in the config directory when none is set" env:"MOTIONPAD_GENERATE_KEY"`
	LogEvery    uint64          `help:"Log every Nth frame at info level; 0 logs none" default:"60" env:"MOTIONPAD_LOG_EVERY"`
}

// Run is called by Kong when the receive command is executed.
func (r *Receive) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, rawLogger)
}

func (r *Receive) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	codec, err := frame.CodecByName(r.Codec)
	if err != nil {
		return err
	}
	if r.Receiver.Password == "" && r.GenerateKey {
		dir, err := configpaths.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve key file path: %w", err)
		}
		pwd, err := loadOrCreateKey(filepath.Join(dir, keyFileName), logger)
		if err != nil {
			return err
		}
		r.Receiver.Password = pwd
	}

	var n uint64
	handle := func(peer string, f *frame.ControlFrame) {
		n++
		logger.Debug("frame", "peer", peer, "leftX", f.LeftX, "leftY", f.LeftY, "buttons", f.Buttons, "azimuth", f.Azimuth, "timestamp", f.Timestamp)
		if r.LogEvery > 0 && n%r.LogEvery == 0 {
			logger.Info("frame", "n", n, "leftX", f.LeftX, "leftY", f.LeftY, "azimuth", f.Azimuth, "timestamp", f.Timestamp)
		}
	}

	srv, err := receiver.New(r.Receiver, codec, handle, logger, rawLogger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	srv.Close()
	handled, dropped := srv.Frames()
	logger.Info("receiver stopped", "frames", handled, "dropped", dropped)
	return nil
}

func loadOrCreateKey(path string, logger *slog.Logger) (string, error) {
	if pwd, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(pwd)), nil
	}
	pwd, err := auth.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create config dir for key file: %w", err)
	}
	if err := os.WriteFile(path, []byte(pwd), 0o600); err != nil {
		return "", fmt.Errorf("failed to write password to file: %w", err)
	}
	logger.Info("generated receiver password", "path", path, "password", pwd)
	return pwd, nil
}
