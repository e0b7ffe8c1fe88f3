package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Alia5/motionpad/motion"
)

// DefaultIIORoot is where the kernel exposes Industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// channel prefixes per kind, e.g. in_anglvel_x_raw and in_anglvel_scale.
var iioChannels = map[motion.SensorKind]string{
	motion.Gyroscope:     "in_anglvel",
	motion.Accelerometer: "in_accel",
	motion.Magnetometer:  "in_magn",
}

// IIODevice describes one IIO device directory.
type IIODevice struct {
	Path  string
	Name  string
	Kinds []motion.SensorKind
}

// ListIIODevices returns the IIO devices under root that expose at least one
// motion channel, sorted by path.
func ListIIODevices(root string) ([]IIODevice, error) {
	if root == "" {
		root = DefaultIIORoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []IIODevice
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "iio:device") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		name, _ := os.ReadFile(filepath.Join(dir, "name"))
		dev := IIODevice{Path: dir, Name: strings.TrimSpace(string(name))}
		for _, k := range motion.Kinds {
			if fileExists(filepath.Join(dir, iioChannels[k]+"_x_raw")) {
				dev.Kinds = append(dev.Kinds, k)
			}
		}
		if len(dev.Kinds) > 0 {
			out = append(out, dev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// FindIIODevice picks a device by name: exact match first, then substring,
// then the first device with any motion channel when name is empty.
func FindIIODevice(root, name string) (IIODevice, error) {
	devs, err := ListIIODevices(root)
	if err != nil {
		return IIODevice{}, err
	}
	if len(devs) == 0 {
		return IIODevice{}, errors.New("no IIO motion device found")
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return devs[0], nil
	}
	for _, d := range devs {
		if strings.ToLower(d.Name) == name {
			return d, nil
		}
	}
	for _, d := range devs {
		if strings.Contains(strings.ToLower(d.Name), name) {
			return d, nil
		}
	}
	return IIODevice{}, fmt.Errorf("IIO device %q not found", name)
}

type iioChannel struct {
	raw    [3]string
	offset [3]float64
	scale  float64
}

type iio struct {
	dev      IIODevice
	interval time.Duration
	channels map[motion.SensorKind]*iioChannel
	subs     subscribers
}

// NewIIO polls dev every interval. Scale and offset attributes are read once;
// a missing scale defaults to 1.
func NewIIO(dev IIODevice, interval time.Duration) (motion.Source, error) {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	s := &iio{dev: dev, interval: interval, channels: map[motion.SensorKind]*iioChannel{}}
	for _, k := range dev.Kinds {
		prefix := filepath.Join(dev.Path, iioChannels[k])
		ch := &iioChannel{scale: 1}
		if v, ok := readFloatIfExists(prefix + "_scale"); ok {
			ch.scale = v
		}
		for i, axis := range []string{"x", "y", "z"} {
			ch.raw[i] = prefix + "_" + axis + "_raw"
			if v, ok := readFloatIfExists(prefix + "_" + axis + "_offset"); ok {
				ch.offset[i] = v
			}
		}
		s.channels[k] = ch
	}
	if len(s.channels) == 0 {
		return nil, fmt.Errorf("IIO device %s has no motion channels", dev.Path)
	}
	return s, nil
}

func (s *iio) Subscribe(kind motion.SensorKind, fn func(motion.RawSample)) error {
	if _, ok := s.channels[kind]; !ok {
		return motion.ErrSensorUnavailable
	}
	s.subs.add(kind, fn)
	return nil
}

func (s *iio) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			for _, k := range motion.Kinds {
				ch, ok := s.channels[k]
				if !ok {
					continue
				}
				v, err := ch.read()
				if err != nil {
					return fmt.Errorf("read %s: %w", k, err)
				}
				s.subs.emit(motion.RawSample{Kind: k, Time: t, Value: v})
			}
		}
	}
}

func (c *iioChannel) read() (motion.Vector3, error) {
	var out [3]float64
	for i, p := range c.raw {
		raw, err := readInt(p)
		if err != nil {
			return motion.Vector3{}, err
		}
		out[i] = (float64(raw) + c.offset[i]) * c.scale
	}
	return motion.Vector3{X: out[0], Y: out[1], Z: out[2]}, nil
}

func readInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, fmt.Errorf("%s: empty", path)
	}
	v, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", fields[0], err)
	}
	return v, nil
}

func readFloatIfExists(path string) (float64, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
