// Package telemetry collects in-memory query metrics from executor events.
package telemetry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/syurodev/system/query/executor"
)

// DefaultBuckets are the upper bounds of the duration histogram.
var DefaultBuckets = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
}

// Key groups events by table and statement kind.
type Key struct {
	Table string
	Kind  string
}

// Series holds the metrics of one key.
type Series struct {
	Key
	Queries  int64
	Errors   int64
	Rows     int64
	InTx     int64
	Total    time.Duration
	Max      time.Duration
	Buckets  []int64
	ErrKinds map[string]int64
}

// Mean returns the average duration.
func (s Series) Mean() time.Duration {
	if s.Queries == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Queries)
}

// Metrics aggregates executor events. The zero value is not usable; call
// New.
type Metrics struct {
	mu      sync.Mutex
	buckets []time.Duration
	series  map[Key]*Series
}

// New creates a collector with DefaultBuckets.
func New() *Metrics {
	return &Metrics{buckets: DefaultBuckets, series: make(map[Key]*Series)}
}

// Observer returns an executor observer that feeds m.
func (m *Metrics) Observer() executor.Observer {
	return m.Record
}

// Record adds one event.
func (m *Metrics) Record(_ context.Context, ev executor.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{Table: ev.Table, Kind: string(ev.Kind)}
	s, ok := m.series[key]
	if !ok {
		s = &Series{Key: key, Buckets: make([]int64, len(m.buckets)+1), ErrKinds: map[string]int64{}}
		m.series[key] = s
	}
	s.Queries++
	s.Total += ev.Duration
	s.Max = max(s.Max, ev.Duration)
	s.Rows += ev.Rows
	if ev.InTx {
		s.InTx++
	}
	s.Buckets[bucket(m.buckets, ev.Duration)]++
	if ev.Err != nil {
		s.Errors++
		s.ErrKinds[errorKind(ev.Err)]++
	}
}

func bucket(bounds []time.Duration, d time.Duration) int {
	return sort.Search(len(bounds), func(i int) bool { return d <= bounds[i] })
}

func errorKind(err error) string {
	var se *executor.StorageError
	switch {
	case errors.As(err, &se) && se.Kind != nil:
		return se.Kind.Error()
	case errors.As(err, &se):
		return "storage"
	}
	return "other"
}

// Snapshot returns a copy of every series ordered by table then kind.
func (m *Metrics) Snapshot() []Series {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Series, 0, len(m.series))
	for _, s := range m.series {
		c := *s
		c.Buckets = append([]int64(nil), s.Buckets...)
		c.ErrKinds = make(map[string]int64, len(s.ErrKinds))
		for k, v := range s.ErrKinds {
			c.ErrKinds[k] = v
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Buckets returns the histogram bounds. The last series bucket counts
// durations above every bound.
func (m *Metrics) Buckets() []time.Duration {
	return append([]time.Duration(nil), m.buckets...)
}

// Reset drops all series.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = make(map[Key]*Series)
}
