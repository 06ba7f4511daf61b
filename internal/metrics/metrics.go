package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/fastconfig/pkg/schema"
)

const namespace = "fastconfig"

// Pull outcome label values.
const (
	PullOK          = "ok"
	PullNotModified = "not_modified"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	reg prometheus.Gatherer

	pulls           *prometheus.CounterVec
	pullDuration    prometheus.Histogram
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensPurged    prometheus.Counter
	configWrites    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		reg: reg,
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Config pulls by outcome. Failed pulls are labeled with their error code.",
		}, []string{"outcome"}),
		pullDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pull_duration_seconds",
			Help:      "Time spent answering config pulls.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_tokens_purged_total",
			Help:      "Expired pull-token rows removed by the janitor.",
		}),
		configWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_writes_total",
			Help:      "Config writes by operation and result.",
		}, []string{"op", "result"}),
	}

	for _, c := range []prometheus.Collector{
		m.pulls, m.pullDuration, m.requests, m.requestDuration, m.tokensPurged, m.configWrites,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObservePull records one pull. err is nil for served and not-modified pulls.
func (m *Metrics) ObservePull(notModified bool, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := PullOK
	switch {
	case err != nil:
		outcome = outcomeOf(err)
	case notModified:
		outcome = PullNotModified
	}
	m.pulls.WithLabelValues(outcome).Inc()
	m.pullDuration.Observe(d.Seconds())
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// AddTokensPurged counts janitor deletions.
func (m *Metrics) AddTokensPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensPurged.Add(float64(n))
}

// ObserveConfigWrite records a create, update, rollback or import.
func (m *Metrics) ObserveConfigWrite(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = outcomeOf(err)
	}
	m.configWrites.WithLabelValues(op, result).Inc()
}

func outcomeOf(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return code
	}
	return schema.ErrCodeInternal
}
