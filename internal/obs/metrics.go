package obs

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics counts outbound requests by classification.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGatewayMetrics registers the gateway collectors on reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketline_gateway_requests_total",
				Help: "Outbound API requests by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketline_gateway_request_duration_seconds",
				Help:    "Outbound API request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Observe records one finished request.
func (m *GatewayMetrics) Observe(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method, outcome).Observe(seconds)
}

// Requests returns the counter for method and outcome.
func (m *GatewayMetrics) Requests(method, outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(method, outcome)
}

// ServerMetrics instruments the development backend.
type ServerMetrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServerMetrics registers the backend collectors on reg when it is non-nil.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ticketline_server_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketline_server_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketline_server_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.inFlight, m.requests, m.duration)
	}
	return m
}

// Begin marks a request in flight and returns the function that completes it.
func (m *ServerMetrics) Begin() func(method, route string, status int, seconds float64) {
	if m == nil {
		return func(string, string, int, float64) {}
	}
	m.inFlight.Inc()
	return func(method, route string, status int, seconds float64) {
		m.inFlight.Dec()
		code := strconv.Itoa(status)
		m.requests.WithLabelValues(method, route, code).Inc()
		m.duration.WithLabelValues(method, route, code).Observe(seconds)
	}
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
