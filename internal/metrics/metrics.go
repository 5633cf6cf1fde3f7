// Package metrics exposes dialogue counters in Prometheus format.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"politerm/internal/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the collectors of one process. A nil Registry records
// nothing.
type Registry struct {
	registry *prometheus.Registry

	blocksReceived  *prometheus.CounterVec
	blocksSkipped   *prometheus.CounterVec
	nudges          *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	rounds          prometheus.Counter
	tasksStarted    prometheus.Counter
	tasksFinished   *prometheus.CounterVec
	tasksAbandoned  prometheus.Counter
	activeTasks     prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Registry{
		registry: registry,
		blocksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_blocks_received_total",
			Help: "Blocks accepted from an agent transcript",
		}, []string{"party", "kind"}),
		blocksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_blocks_skipped_total",
			Help: "Decoded blocks that were not routed",
		}, []string{"party", "reason"}),
		nudges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_nudges_total",
			Help: "Reminders written to a silent agent",
		}, []string{"party"}),
		waitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "politerm_wait_duration_seconds",
			Help:    "Time spent waiting for an agent block",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
		}, []string{"party", "outcome"}),
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "politerm_rounds_total",
			Help: "Execution rounds started",
		}),
		tasksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "politerm_tasks_started_total",
			Help: "Tasks the dialogue engine started",
		}),
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_tasks_finished_total",
			Help: "Tasks that reached a terminal status",
		}, []string{"status"}),
		tasksAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "politerm_tasks_abandoned_total",
			Help: "Tasks dropped after a failed write to an agent",
		}),
		activeTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "politerm_active_tasks",
			Help: "Tasks currently in progress",
		}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_events_published_total",
			Help: "Events published on an in-process bus",
		}, []string{"bus", "type"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_events_dropped_total",
			Help: "Events dropped because a subscriber was full",
		}, []string{"bus", "type"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "politerm_event_subscribers",
			Help: "Event bus subscribers",
		}, []string{"bus", "filtered"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politerm_http_requests_total",
			Help: "Status API requests",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "politerm_http_request_duration_seconds",
			Help:    "Status API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

func (r *Registry) Nudged(party protocol.Party) {
	if r == nil {
		return
	}
	r.nudges.WithLabelValues(party.String()).Inc()
}

func (r *Registry) Skipped(party protocol.Party, _ protocol.Message, reason string) {
	if r == nil {
		return
	}
	r.blocksSkipped.WithLabelValues(party.String(), reason).Inc()
}

func (r *Registry) BlockReceived(party protocol.Party, kind protocol.Kind) {
	if r == nil {
		return
	}
	r.blocksReceived.WithLabelValues(party.String(), kind.String()).Inc()
}

func (r *Registry) ObserveWait(party protocol.Party, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.waitDuration.WithLabelValues(party.String(), outcome).Observe(elapsed.Seconds())
}

func (r *Registry) RoundStarted() {
	if r == nil {
		return
	}
	r.rounds.Inc()
}

func (r *Registry) TaskStarted() {
	if r == nil {
		return
	}
	r.tasksStarted.Inc()
}

func (r *Registry) TaskFinished(status string) {
	if r == nil {
		return
	}
	r.tasksFinished.WithLabelValues(status).Inc()
}

func (r *Registry) TaskAbandoned() {
	if r == nil {
		return
	}
	r.tasksAbandoned.Inc()
}

// SetActiveTasks reports how many tasks the engine is driving right now.
func (r *Registry) SetActiveTasks(count int) {
	if r == nil {
		return
	}
	r.activeTasks.Set(float64(count))
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventsPublished.WithLabelValues(bus, eventType).Inc()
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventsDropped.WithLabelValues(bus, eventType).Inc()
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	r.subscribers.WithLabelValues(bus, "true").Set(float64(filtered))
	r.subscribers.WithLabelValues(bus, "false").Set(float64(unfiltered))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Middleware records request counts and latency. pathLabel maps a request to
// a low-cardinality label.
func (r *Registry) Middleware(pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, req)
			path := "other"
			if pathLabel != nil {
				path = pathLabel(req)
			}
			r.requests.WithLabelValues(req.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			r.requestDuration.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
