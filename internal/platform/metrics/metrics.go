package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the segmenting pipeline.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	fragmentsCutTotal   prometheus.Counter
	initFragmentsTotal  prometheus.Counter
	droppedWritesTotal  prometheus.Counter
	tickErrorsTotal     prometheus.Counter
	bytesPublishedTotal prometheus.Counter
	recording           prometheus.Gauge
	errorsTotal         prometheus.Counter
}

// New creates and registers Prometheus metrics for the segmenter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_requests_total",
		Help: "Total number of HTTP requests received",
	})
	fragmentsCutTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_media_fragments_total",
		Help: "Total number of media fragments cut and published",
	})
	initFragmentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_init_fragments_total",
		Help: "Total number of initialization fragments produced",
	})
	droppedWritesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_dropped_writes_total",
		Help: "Total number of sample writes dropped (cut in progress, track unregistered, or writing not begun)",
	})
	tickErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_tick_errors_total",
		Help: "Total number of scheduler ticks that failed and were skipped",
	})
	bytesPublishedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_bytes_published_total",
		Help: "Total fragment bytes published to the catalog",
	})
	recording := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dash_recording",
		Help: "1 while a recording session is active, 0 otherwise",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dash_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		fragmentsCutTotal,
		initFragmentsTotal,
		droppedWritesTotal,
		tickErrorsTotal,
		bytesPublishedTotal,
		recording,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		fragmentsCutTotal:   fragmentsCutTotal,
		initFragmentsTotal:  initFragmentsTotal,
		droppedWritesTotal:  droppedWritesTotal,
		tickErrorsTotal:     tickErrorsTotal,
		bytesPublishedTotal: bytesPublishedTotal,
		recording:           recording,
		errorsTotal:         errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncFragmentsCut increments the media fragment counter.
func (m *Metrics) IncFragmentsCut() {
	m.fragmentsCutTotal.Inc()
}

// IncInitFragments increments the initialization fragment counter.
func (m *Metrics) IncInitFragments() {
	m.initFragmentsTotal.Inc()
}

// IncDroppedWrites increments the dropped sample-write counter.
func (m *Metrics) IncDroppedWrites() {
	m.droppedWritesTotal.Inc()
}

// IncTickErrors increments the failed-tick counter.
func (m *Metrics) IncTickErrors() {
	m.tickErrorsTotal.Inc()
}

// AddBytesPublished adds n to the published-bytes counter.
func (m *Metrics) AddBytesPublished(n int64) {
	if n > 0 {
		m.bytesPublishedTotal.Add(float64(n))
	}
}

// SetRecording sets the recording gauge to 1 or 0.
func (m *Metrics) SetRecording(on bool) {
	if on {
		m.recording.Set(1)
	} else {
		m.recording.Set(0)
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. the recording state).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
