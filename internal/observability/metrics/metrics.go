// Package metrics aggregates the bot's Prometheus collectors behind one
// registry. The Metrics value satisfies the recorder interfaces of the
// event, note and slack packages so a single instance observes the whole
// pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slacknotes/internal/event"
	"slacknotes/internal/note"
	"slacknotes/internal/slack"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds the collectors and the private registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	notesSaved      prometheus.Counter
	slackRequests   *prometheus.CounterVec

	handlerDuration  *prometheus.HistogramVec
	slackAPIDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slacknotes_events_received_total",
				Help: "Total number of inbound Slack envelopes by intake outcome.",
			},
			[]string{"kind", "outcome"},
		),
		eventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slacknotes_events_processed_total",
				Help: "Total number of envelope deliveries by processing outcome.",
			},
			[]string{"kind", "outcome"},
		),
		notesSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "slacknotes_notes_saved_total",
				Help: "Total number of notes persisted.",
			},
		),
		slackRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slacknotes_slack_api_requests_total",
				Help: "Total number of Slack Web API calls.",
			},
			[]string{"method", "status"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slacknotes_handler_duration_seconds",
				Help:    "Envelope handler duration in seconds.",
				Buckets: durationBuckets,
			},
			[]string{"kind"},
		),
		slackAPIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slacknotes_slack_api_duration_seconds",
				Help:    "Slack Web API call duration in seconds.",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),
	}

	collectors := []prometheus.Collector{
		m.eventsReceived,
		m.eventsProcessed,
		m.notesSaved,
		m.slackRequests,
		m.handlerDuration,
		m.slackAPIDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Handler exposes the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordReceived implements event.IngestRecorder.
func (m *Metrics) RecordReceived(kind, outcome string) {
	m.eventsReceived.WithLabelValues(kind, outcome).Inc()
}

// RecordProcessed implements event.Recorder.
func (m *Metrics) RecordProcessed(kind, outcome string) {
	m.eventsProcessed.WithLabelValues(kind, outcome).Inc()
}

// ObserveHandler implements event.Recorder.
func (m *Metrics) ObserveHandler(kind string, elapsed time.Duration) {
	m.handlerDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordNoteSaved implements note.Recorder.
func (m *Metrics) RecordNoteSaved() {
	m.notesSaved.Inc()
}

// RecordSlackCall implements slack.CallRecorder.
func (m *Metrics) RecordSlackCall(method, status string, elapsed time.Duration) {
	m.slackRequests.WithLabelValues(method, status).Inc()
	m.slackAPIDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ensure interface compliance at compile time
var (
	_ event.Recorder       = (*Metrics)(nil)
	_ event.IngestRecorder = (*Metrics)(nil)
	_ note.Recorder        = (*Metrics)(nil)
	_ slack.CallRecorder   = (*Metrics)(nil)
)
