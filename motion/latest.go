package motion

import (
	"errors"
	"log/slog"
	"sync"
)

// Latest keeps the most recent sample of every kind. New samples overwrite
// older ones; readers always see a complete sample.
type Latest struct {
	mu      sync.RWMutex
	samples [numKinds]RawSample
	have    [numKinds]bool
	counts  [numKinds]uint64
}

// NewLatest returns an empty store.
func NewLatest() *Latest {
	return &Latest{}
}

// Put stores s as the latest sample of its kind. Samples of unknown kinds and
// samples with non-finite values are ignored.
func (l *Latest) Put(s RawSample) {
	if s.Kind >= numKinds || !s.Value.IsFinite() {
		return
	}
	l.mu.Lock()
	l.samples[s.Kind] = s
	l.have[s.Kind] = true
	l.counts[s.Kind]++
	l.mu.Unlock()
}

// Get returns the latest sample of kind and whether one has been seen.
func (l *Latest) Get(kind SensorKind) (RawSample, bool) {
	if kind >= numKinds {
		return RawSample{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.samples[kind], l.have[kind]
}

// Count returns how many samples of kind have been stored.
func (l *Latest) Count(kind SensorKind) uint64 {
	if kind >= numKinds {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[kind]
}

// Attach subscribes the store to every kind in kinds. Kinds the sampler cannot
// back are logged and skipped; the kinds actually attached are returned.
func (l *Latest) Attach(s Sampler, logger *slog.Logger, kinds ...SensorKind) ([]SensorKind, error) {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	var attached []SensorKind
	for _, k := range kinds {
		err := s.Subscribe(k, l.Put)
		if errors.Is(err, ErrSensorUnavailable) {
			logger.Warn("sensor not available, related fields stay at default", "sensor", k)
			continue
		}
		if err != nil {
			return attached, err
		}
		attached = append(attached, k)
	}
	return attached, nil
}
