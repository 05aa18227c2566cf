package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus instruments for AquaSentinel Core.
//
// A Metrics value owns its registry, so multiple instances (one per test,
// for example) never collide on the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	// MessagesReceived counts inbound broker messages by class
	// (data, register, presence_response, presence_announce).
	MessagesReceived *prometheus.CounterVec

	// IngestJobs counts ingestion jobs by outcome
	// (processed, rejected, retried, dead_letter, inline).
	IngestJobs *prometheus.CounterVec

	// QueueDepth is the current number of buffered ingestion jobs.
	QueueDepth prometheus.Gauge

	// AlertsCreated counts new alert records.
	AlertsCreated prometheus.Counter

	// AlertsUpdated counts occurrence updates to existing alerts.
	AlertsUpdated prometheus.Counter

	// PollCycles counts presence poll cycles by outcome (success, failure, skipped).
	PollCycles *prometheus.CounterVec

	// BreakerOpen is 1 while the presence circuit breaker is open, 0 otherwise.
	BreakerOpen prometheus.Gauge

	// DevicesOnline is the device count from the last completed poll cycle.
	DevicesOnline prometheus.Gauge

	// CommandsQueued counts commands deferred for offline devices.
	CommandsQueued prometheus.Counter

	// CommandsDelivered counts commands published to devices, immediate or drained.
	CommandsDelivered prometheus.Counter
}

// New creates a Metrics with all instruments registered on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquasentinel_messages_received_total",
			Help: "Inbound broker messages by class.",
		}, []string{"class"}),
		IngestJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquasentinel_ingest_jobs_total",
			Help: "Sensor ingestion jobs by outcome.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aquasentinel_ingest_queue_depth",
			Help: "Current number of buffered ingestion jobs.",
		}),
		AlertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquasentinel_alerts_created_total",
			Help: "New alert records created.",
		}),
		AlertsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquasentinel_alerts_updated_total",
			Help: "Occurrence updates applied to existing alerts.",
		}),
		PollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquasentinel_presence_poll_cycles_total",
			Help: "Presence poll cycles by outcome.",
		}, []string{"outcome"}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aquasentinel_presence_breaker_open",
			Help: "1 while the presence circuit breaker is open.",
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aquasentinel_devices_online",
			Help: "Devices online per the last completed poll cycle.",
		}),
		CommandsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquasentinel_commands_queued_total",
			Help: "Commands deferred because the target device was offline.",
		}),
		CommandsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquasentinel_commands_delivered_total",
			Help: "Commands published to devices.",
		}),
	}

	registry.MustRegister(
		m.MessagesReceived,
		m.IngestJobs,
		m.QueueDepth,
		m.AlertsCreated,
		m.AlertsUpdated,
		m.PollCycles,
		m.BreakerOpen,
		m.DevicesOnline,
		m.CommandsQueued,
		m.CommandsDelivered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an HTTP handler serving this registry in the Prometheus
// exposition format. Mounted at /metrics by the ops server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
