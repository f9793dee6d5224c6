package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for HTTP traffic and flow
// outcomes.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	turnCount    map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		turnCount:    make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTurn counts one processed conversation turn by its outcome branch
// (faq, slot_fill, resolved, invalid_data, unknown_intent, system_error,
// compliance_blocked).
func (m *Metrics) RecordTurn(branch string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnCount[branch]++
}

// TurnCounts returns a copy of the per-branch turn counters.
func (m *Metrics) TurnCounts() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.turnCount))
	for k, v := range m.turnCount {
		out[k] = v
	}
	return out
}
