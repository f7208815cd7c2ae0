package main

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	r.buf[r.idx] = d
	r.idx++
	if r.idx >= len(r.buf) {
		r.idx = 0
	}
	if r.count < len(r.buf) {
		r.count++
	}
}

type durationStats struct {
	last time.Duration
	max  time.Duration
	avg  time.Duration
	n    int
}

func (r *durationRing) snapshot() durationStats {
	if r.count == 0 {
		return durationStats{}
	}
	var sum, maxD time.Duration
	for i := 0; i < r.count; i++ {
		d := r.buf[i]
		sum += d
		if d > maxD {
			maxD = d
		}
	}
	lastIdx := r.idx - 1
	if lastIdx < 0 {
		lastIdx = len(r.buf) - 1
	}
	return durationStats{
		last: r.buf[lastIdx],
		max:  maxD,
		avg:  sum / time.Duration(r.count),
		n:    r.count,
	}
}

// dashboardMetrics records request latencies and live message counts for the
// stats block, and mirrors them into Prometheus collectors.
type dashboardMetrics struct {
	enabled atomic.Bool

	requests atomic.Uint64
	failures atomic.Uint64

	liveMessages  atomic.Uint64
	liveBad       atomic.Uint64
	firstLiveNs   atomic.Int64
	lastLiveNs    atomic.Int64
	latencyMu     sync.Mutex
	latency       *durationRing
	lastFailureOp atomic.Value

	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	liveTotal       *prometheus.CounterVec
}

func newDashboardMetrics(window int) *dashboardMetrics {
	m := &dashboardMetrics{
		latency:  newDurationRing(window),
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetdash",
			Name:      "backend_requests_total",
			Help:      "Backend requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sheetdash",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		liveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetdash",
			Name:      "live_messages_total",
			Help:      "Live messages received, by decode outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.requestTotal, m.requestDuration, m.liveTotal)
	m.lastFailureOp.Store("")
	return m
}

func (m *dashboardMetrics) setEnabled(v bool) { m.enabled.Store(v) }
func (m *dashboardMetrics) isEnabled() bool   { return m.enabled.Load() }

func (m *dashboardMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRequest implements api.Observer.
func (m *dashboardMetrics) ObserveRequest(op string, took time.Duration, err error) {
	m.requestTotal.WithLabelValues(op, outcome(err)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(took.Seconds())
	if !m.isEnabled() {
		return
	}
	m.requests.Add(1)
	if err != nil {
		m.failures.Add(1)
		m.lastFailureOp.Store(op)
	}
	m.latencyMu.Lock()
	m.latency.add(took)
	m.latencyMu.Unlock()
}

// ObserveMessage implements live.Observer.
func (m *dashboardMetrics) ObserveMessage(err error) {
	m.liveTotal.WithLabelValues(outcome(err)).Inc()
	if !m.isEnabled() {
		return
	}
	if err != nil {
		m.liveBad.Add(1)
		return
	}
	nowNs := time.Now().UnixNano()
	m.firstLiveNs.CompareAndSwap(0, nowNs)
	m.lastLiveNs.Store(nowNs)
	m.liveMessages.Add(1)
}

type snapshot struct {
	requests      uint64
	failures      uint64
	lastFailureOp string
	latency       durationStats
	liveMessages  uint64
	liveBad       uint64
	liveRps       uint64
}

func (m *dashboardMetrics) snapshot() snapshot {
	if !m.isEnabled() {
		return snapshot{}
	}
	m.latencyMu.Lock()
	lat := m.latency.snapshot()
	m.latencyMu.Unlock()

	msgs := m.liveMessages.Load()
	var rps uint64
	first, last := m.firstLiveNs.Load(), m.lastLiveNs.Load()
	if first != 0 && last > first {
		active := time.Duration(last - first)
		rps = uint64(float64(msgs)/active.Seconds() + 0.5)
	}
	op, _ := m.lastFailureOp.Load().(string)
	return snapshot{
		requests:      m.requests.Load(),
		failures:      m.failures.Load(),
		lastFailureOp: op,
		latency:       lat,
		liveMessages:  msgs,
		liveBad:       m.liveBad.Load(),
		liveRps:       rps,
	}
}
