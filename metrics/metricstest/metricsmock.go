// Package metricstest provides an in-memory metrics collector for tests.
package metricstest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/viaduct-io/viaduct/metrics"
)

// MockMetrics records all measurements in memory so that tests can
// inspect them.
type MockMetrics struct {
	Prefix string

	// Now, when set, is used instead of time.Now() to compute the
	// durations of measurements.
	Now time.Time

	mu            sync.Mutex
	counters      map[string]int64
	floatCounters map[string]float64
	gauges        map[string]float64
	measures      map[string][]time.Duration
}

// WithCounters calls f with the current counter values while holding
// the collector lock.
func (m *MockMetrics) WithCounters(f func(counters map[string]int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	f(m.counters)
}

func (m *MockMetrics) WithFloatCounters(f func(floatCounters map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.floatCounters == nil {
		m.floatCounters = make(map[string]float64)
	}
	f(m.floatCounters)
}

func (m *MockMetrics) WithGauges(f func(gauges map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = make(map[string]float64)
	}
	f(m.gauges)
}

func (m *MockMetrics) WithMeasures(f func(measures map[string][]time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.measures == nil {
		m.measures = make(map[string][]time.Duration)
	}
	f(m.measures)
}

// Counter returns the recorded value of the counter identified by key.
func (m *MockMetrics) Counter(key string) (v int64, ok bool) {
	m.WithCounters(func(counters map[string]int64) {
		v, ok = counters[m.Prefix+key]
	})
	return
}

// FloatCounter returns the recorded value of the float counter
// identified by key.
func (m *MockMetrics) FloatCounter(key string) (v float64, ok bool) {
	m.WithFloatCounters(func(floatCounters map[string]float64) {
		v, ok = floatCounters[m.Prefix+key]
	})
	return
}

// Gauge returns the recorded value of the gauge identified by key.
func (m *MockMetrics) Gauge(key string) (v float64, ok bool) {
	m.WithGauges(func(gauges map[string]float64) {
		v, ok = gauges[key]
	})
	return
}

// Timer returns the recorded durations measured for key.
func (m *MockMetrics) Timer(key string) (d []time.Duration, ok bool) {
	m.WithMeasures(func(measures map[string][]time.Duration) {
		d, ok = measures[key]
	})
	return
}

func (m *MockMetrics) now() time.Time {
	if m.Now.IsZero() {
		return time.Now()
	}
	return m.Now
}

func (m *MockMetrics) measure(key string, start time.Time) {
	d := m.now().Sub(start)
	m.WithMeasures(func(measures map[string][]time.Duration) {
		measures[key] = append(measures[key], d)
	})
}

func (m *MockMetrics) MeasureSince(key string, start time.Time) {
	m.measure(m.Prefix+key, start)
}

func (m *MockMetrics) IncCounter(key string) {
	m.IncCounterBy(key, 1)
}

func (m *MockMetrics) IncCounterBy(key string, value int64) {
	key = m.Prefix + key
	m.WithCounters(func(counters map[string]int64) {
		counters[key] += value
	})
}

func (m *MockMetrics) IncFloatCounterBy(key string, value float64) {
	key = m.Prefix + key
	m.WithFloatCounters(func(floatCounters map[string]float64) {
		floatCounters[key] += value
	})
}

func (m *MockMetrics) UpdateGauge(key string, value float64) {
	m.WithGauges(func(gauges map[string]float64) {
		gauges[key] = value
	})
}

func (m *MockMetrics) MeasureRouteLookup(start time.Time) {
	m.measure(metrics.KeyRouteLookup, start)
}

func (m *MockMetrics) MeasureFilterRequest(filterName string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyFilterRequest, filterName), start)
}

func (m *MockMetrics) MeasureAllFiltersRequest(routeID string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyFiltersRequest, routeID), start)
}

func (m *MockMetrics) MeasureBackend(routeID string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyProxyBackend, routeID), start)
}

func (m *MockMetrics) MeasureBackendHost(routeBackendHost string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyProxyBackendHost, hostForKey(routeBackendHost)), start)
}

func (m *MockMetrics) MeasureFilterResponse(filterName string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyFilterResponse, filterName), start)
}

func (m *MockMetrics) MeasureAllFiltersResponse(routeID string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyFiltersResponse, routeID), start)
}

func (m *MockMetrics) MeasureResponse(code int, method string, routeID string, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyResponseCombined, code, method), start)
	m.measure(fmt.Sprintf(metrics.KeyResponse, code, method, routeID), start)
}

func (m *MockMetrics) MeasureServe(routeID, host, method string, code int, start time.Time) {
	m.measure(fmt.Sprintf(metrics.KeyServeRoute, routeID, method, code), start)
	m.measure(fmt.Sprintf(metrics.KeyServeHost, hostForKey(host), method, code), start)
}

func (m *MockMetrics) IncRoutingFailures() {
	m.IncCounter(metrics.KeyRouteFailure)
}

func (m *MockMetrics) IncErrorsBackend(routeID string) {
	m.IncCounter(fmt.Sprintf(metrics.KeyErrorsBackend, routeID))
}

func (m *MockMetrics) MeasureBackend5xx(t time.Time) {
	m.measure(metrics.Key5xxsBackend, t)
}

func (m *MockMetrics) IncErrorsStreaming(routeID string) {
	m.IncCounter(fmt.Sprintf(metrics.KeyErrorsStreaming, routeID))
}

func (m *MockMetrics) RegisterHandler(path string, handler *http.ServeMux) {}

func (m *MockMetrics) Close() {}

func hostForKey(h string) string {
	h = strings.Replace(h, ".", "_", -1)
	h = strings.Replace(h, ":", "__", -1)
	return h
}
