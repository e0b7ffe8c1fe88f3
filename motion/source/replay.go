package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alia5/motionpad/motion"
)

// Recording is the on-disk form of a replay file.
//
//	samples:
//	  - at: 0
//	    kind: gyroscope
//	    x: 0.1
//	    y: -0.2
//	    z: 0
type Recording struct {
	Samples []RecordedSample `yaml:"samples"`
}

// RecordedSample is one sample of a Recording. At is the offset from the start
// of the recording in milliseconds.
type RecordedSample struct {
	At   int64             `yaml:"at"`
	Kind motion.SensorKind `yaml:"kind"`
	X    float64           `yaml:"x"`
	Y    float64           `yaml:"y"`
	Z    float64           `yaml:"z"`
}

// ParseRecording decodes a YAML recording and sorts it by offset.
func ParseRecording(r io.Reader) (*Recording, error) {
	var rec Recording
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	for i, s := range rec.Samples {
		if s.At < 0 {
			return nil, fmt.Errorf("sample %d: negative offset %d", i, s.At)
		}
	}
	sort.SliceStable(rec.Samples, func(i, j int) bool { return rec.Samples[i].At < rec.Samples[j].At })
	return &rec, nil
}

// LoadRecording reads a recording from path.
func LoadRecording(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseRecording(f)
}

type replay struct {
	rec   *Recording
	loop  bool
	kinds map[motion.SensorKind]bool
	subs  subscribers
}

// NewReplay plays rec back at its recorded offsets. Kinds absent from the
// recording are reported as unavailable. With loop set, playback restarts at
// the end of the recording.
func NewReplay(rec *Recording, loop bool) motion.Source {
	kinds := map[motion.SensorKind]bool{}
	for _, s := range rec.Samples {
		kinds[s.Kind] = true
	}
	return &replay{rec: rec, loop: loop, kinds: kinds}
}

func (r *replay) Subscribe(kind motion.SensorKind, fn func(motion.RawSample)) error {
	if !r.kinds[kind] {
		return motion.ErrSensorUnavailable
	}
	r.subs.add(kind, fn)
	return nil
}

func (r *replay) Run(ctx context.Context) error {
	if len(r.rec.Samples) == 0 {
		<-ctx.Done()
		return nil
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		start := time.Now()
		for _, s := range r.rec.Samples {
			due := start.Add(time.Duration(s.At) * time.Millisecond)
			if wait := time.Until(due); wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return nil
				case <-timer.C:
				}
			} else if ctx.Err() != nil {
				return nil
			}
			r.subs.emit(motion.RawSample{
				Kind:  s.Kind,
				Time:  time.Now(),
				Value: motion.Vector3{X: s.X, Y: s.Y, Z: s.Z},
			})
		}
		if !r.loop {
			<-ctx.Done()
			return nil
		}
		// A recording whose samples all share one offset would spin.
		if r.rec.Samples[len(r.rec.Samples)-1].At == 0 {
			timer.Reset(time.Millisecond)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
		}
	}
}
