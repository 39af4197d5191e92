package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream orchestrator.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	streamsStartedTotal prometheus.Counter
	streamsEndedTotal   prometheus.Counter
	startFailuresTotal  prometheus.Counter
	pipelinesStarted    *prometheus.CounterVec
	pipelinesTerminated *prometheus.CounterVec
	activePipelines     prometheus.Gauge
	registryEntries     prometheus.Gauge
	activeStreams       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		streamsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_streams_started_total",
			Help: "Total number of logical streams started",
		}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_streams_ended_total",
			Help: "Total number of logical streams whose pipelines all terminated",
		}),
		startFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamer_stream_start_failures_total",
			Help: "Total number of logical streams that failed to start",
		}),
		pipelinesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_pipelines_started_total",
			Help: "Total number of per-resolution pipelines set to playing",
		}, []string{"resolution"}),
		pipelinesTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamer_pipelines_terminated_total",
			Help: "Total number of per-resolution pipelines torn down, by reason",
		}, []string{"resolution", "reason"}),
		activePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_active_pipelines",
			Help: "Number of per-resolution pipelines currently supervised",
		}),
		registryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_registry_entries",
			Help: "Number of logical streams held in the stream registry",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamer_active_streams",
			Help: "Number of recorded live streams that have not ended",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.streamsStartedTotal,
		m.streamsEndedTotal,
		m.startFailuresTotal,
		m.pipelinesStarted,
		m.pipelinesTerminated,
		m.activePipelines,
		m.registryEntries,
		m.activeStreams,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamsStarted increments the logical streams started counter.
func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

// IncStreamsEnded increments the logical streams ended counter.
func (m *Metrics) IncStreamsEnded() {
	m.streamsEndedTotal.Inc()
}

// IncStartFailures increments the failed start counter.
func (m *Metrics) IncStartFailures() {
	m.startFailuresTotal.Inc()
}

// PipelineStarted records a pipeline transition to playing.
func (m *Metrics) PipelineStarted(streamID, resolution string) {
	m.pipelinesStarted.WithLabelValues(resolution).Inc()
	m.activePipelines.Inc()
}

// PipelineTerminated records a pipeline teardown with its termination reason.
func (m *Metrics) PipelineTerminated(streamID, resolution, reason string) {
	m.pipelinesTerminated.WithLabelValues(resolution, reason).Inc()
	m.activePipelines.Dec()
}

// SetRegistryEntries sets the registry entries gauge.
func (m *Metrics) SetRegistryEntries(n int) {
	m.registryEntries.Set(float64(n))
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. registry size).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
