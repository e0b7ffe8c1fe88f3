// Package source provides motion.Source implementations: Linux IIO sysfs
// polling, recorded YAML replay and a synthetic generator.
package source

import (
	"sync"

	"github.com/Alia5/motionpad/motion"
)

// subscribers fans samples out to the callbacks registered per kind.
type subscribers struct {
	mu  sync.RWMutex
	fns map[motion.SensorKind][]func(motion.RawSample)
}

func (s *subscribers) add(kind motion.SensorKind, fn func(motion.RawSample)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[motion.SensorKind][]func(motion.RawSample))
	}
	s.fns[kind] = append(s.fns[kind], fn)
}

func (s *subscribers) emit(sample motion.RawSample) {
	s.mu.RLock()
	fns := s.fns[sample.Kind]
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(sample)
	}
}
