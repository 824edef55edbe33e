package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	transitions  map[string]int64
	rejections   map[string]int64
	deliveries   map[string]int64
	failures     map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		transitions:  make(map[string]int64),
		rejections:   make(map[string]int64),
		deliveries:   make(map[string]int64),
		failures:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.inc(m.requestCount, path+"|"+method+"|"+strconv.Itoa(status))
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.inc(m.errorCount, path+"|"+method+"|"+code)
}

// RecordTransition counts a committed lifecycle event by name.
func (m *Metrics) RecordTransition(event string) {
	if m == nil {
		return
	}
	m.inc(m.transitions, event)
}

// RecordRejection counts a refused lifecycle event by error code.
func (m *Metrics) RecordRejection(code string) {
	if m == nil {
		return
	}
	m.inc(m.rejections, code)
}

// RecordDelivery counts a notification attempt on a surface.
func (m *Metrics) RecordDelivery(surface string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.inc(m.failures, surface)
		return
	}
	m.inc(m.deliveries, surface)
}

func (m *Metrics) inc(counter map[string]int64, key string) {
	m.mu.Lock()
	counter[key]++
	m.mu.Unlock()
}

// Counter is a single named value in a snapshot.
type Counter struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// MetricsSnapshot is a point-in-time copy of every counter group.
type MetricsSnapshot struct {
	Requests         []Counter `json:"requests"`
	Errors           []Counter `json:"errors"`
	Transitions      []Counter `json:"transitions"`
	Rejections       []Counter `json:"rejections"`
	Deliveries       []Counter `json:"deliveries"`
	DeliveryFailures []Counter `json:"delivery_failures"`
}

// Snapshot copies the counters, sorted by name.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:         sorted(m.requestCount),
		Errors:           sorted(m.errorCount),
		Transitions:      sorted(m.transitions),
		Rejections:       sorted(m.rejections),
		Deliveries:       sorted(m.deliveries),
		DeliveryFailures: sorted(m.failures),
	}
}

func sorted(counter map[string]int64) []Counter {
	out := make([]Counter, 0, len(counter))
	for name, value := range counter {
		out = append(out, Counter{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
