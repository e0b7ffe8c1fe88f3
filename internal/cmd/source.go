package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Alia5/motionpad/motion"
	"github.com/Alia5/motionpad/motion/source"
)

// SourceConfig selects where motion samples come from.
type SourceConfig struct {
	Kind     string        `help:"Sample source" enum:"iio,synthetic,replay" default:"iio" env:"MOTIONPAD_SOURCE"`
	Device   string        `help:"IIO device name; empty picks the first motion device" env:"MOTIONPAD_SOURCE_DEVICE"`
	IIORoot  string        `name:"iio-root" help:"IIO sysfs root" default:"/sys/bus/iio/devices" env:"MOTIONPAD_SOURCE_IIO_ROOT"`
	Interval time.Duration `help:"Sensor polling interval" default:"10ms" env:"MOTIONPAD_SOURCE_INTERVAL"`
	File     string        `help:"Recording to play back with the replay source" type:"path" env:"MOTIONPAD_SOURCE_FILE"`
	Loop     bool          `help:"Restart the recording when it ends" env:"MOTIONPAD_SOURCE_LOOP"`
}

// Open builds the configured source.
func (c SourceConfig) Open(logger *slog.Logger) (motion.Source, error) {
	switch c.Kind {
	case "synthetic":
		logger.Info("using synthetic motion source", "interval", c.Interval)
		return source.NewSynthetic(c.Interval), nil
	case "replay":
		if c.File == "" {
			return nil, fmt.Errorf("replay source needs --source.file")
		}
		rec, err := source.LoadRecording(c.File)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying recording", "file", c.File, "samples", len(rec.Samples), "loop", c.Loop)
		return source.NewReplay(rec, c.Loop), nil
	case "", "iio":
		dev, err := source.FindIIODevice(c.IIORoot, c.Device)
		if err != nil {
			return nil, fmt.Errorf("find IIO device: %w", err)
		}
		logger.Info("using IIO device", "name", dev.Name, "path", dev.Path, "sensors", dev.Kinds)
		return source.NewIIO(dev, c.Interval)
	default:
		return nil, fmt.Errorf("unknown source %q", c.Kind)
	}
}
