package adapters

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/garagegate/internal/infrastructure/metrics"
)

// Health is a source's operating condition.
type Health string

// Source health values.
const (
	HealthStarting Health = "starting"
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStopped  Health = "stopped"
)

// Status is a snapshot of one source.
type Status struct {
	Name        string    `json:"name"`
	Health      Health    `json:"health"`
	LastError   string    `json:"last_error,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	Commands    int       `json:"commands"`
	Dropped     int       `json:"dropped"`
	LastChanged time.Time `json:"last_changed"`
}

// StatusBoard tracks the health of every running source. It is safe for
// concurrent use.
type StatusBoard struct {
	mu      sync.RWMutex
	sources map[string]*Status
	metrics *metrics.Metrics
}

// NewStatusBoard creates an empty board. m may be nil.
func NewStatusBoard(m *metrics.Metrics) *StatusBoard {
	return &StatusBoard{sources: make(map[string]*Status), metrics: m}
}

func (b *StatusBoard) update(name string, fn func(s *Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sources[name]
	if !ok {
		s = &Status{Name: name, Health: HealthStarting, LastChanged: time.Now()}
		b.sources[name] = s
	}
	before := s.Health
	fn(s)
	if s.Health != before {
		s.LastChanged = time.Now()
	}
	if b.metrics != nil {
		v := 0.0
		if s.Health == HealthHealthy {
			v = 1
		}
		b.metrics.AdapterHealthy.WithLabelValues(name).Set(v)
	}
}

func (b *StatusBoard) starting(name string) {
	b.update(name, func(s *Status) { s.Health = HealthStarting })
}

func (b *StatusBoard) healthy(name string) {
	b.update(name, func(s *Status) {
		s.Health = HealthHealthy
		s.Failures = 0
		s.LastError = ""
	})
}

func (b *StatusBoard) degraded(name string, err error) {
	b.update(name, func(s *Status) {
		s.Health = HealthDegraded
		s.Failures++
		s.LastError = err.Error()
	})
	if b.metrics != nil {
		b.metrics.AdapterErrors.WithLabelValues(name).Inc()
	}
}

func (b *StatusBoard) submitted(name string, ok bool) {
	b.update(name, func(s *Status) {
		if ok {
			s.Commands++
		} else {
			s.Dropped++
		}
	})
}

func (b *StatusBoard) stopped(name string) {
	b.update(name, func(s *Status) { s.Health = HealthStopped })
}

// ReportDegraded marks name degraded for a failure seen outside its poll
// loop, such as the transport it listens on going away.
func (b *StatusBoard) ReportDegraded(name string, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	b.degraded(name, err)
}

// ReportRecovered marks name healthy again after ReportDegraded. A source
// that has already stopped stays stopped.
func (b *StatusBoard) ReportRecovered(name string) {
	b.update(name, func(s *Status) {
		if s.Health == HealthStopped {
			return
		}
		s.Health = HealthHealthy
		s.Failures = 0
		s.LastError = ""
	})
}

// Get returns the status of one source.
func (b *StatusBoard) Get(name string) (Status, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sources[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Snapshot returns every source's status ordered by name.
func (b *StatusBoard) Snapshot() []Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Status, 0, len(b.sources))
	for _, s := range b.sources {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
