package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "blospray"

// metrics holds the Prometheus collectors of one server.
type metrics struct {
	sessionsTotal    prometheus.Counter
	activeSessions   prometheus.Gauge
	commandsTotal    *prometheus.CounterVec
	commandErrors    *prometheus.CounterVec
	framesTotal      *prometheus.CounterVec
	frameDuration    *prometheus.HistogramVec
	framePayload     prometheus.Counter
	cancelsTotal     prometheus.Counter
	pluginGenerates  prometheus.Counter
	pluginCacheHits  prometheus.Counter
	pluginErrors     prometheus.Counter
	rendererErrors   prometheus.Counter
	archivedFrames   *prometheus.CounterVec
	renderOutputConn prometheus.Gauge
}

// newMetrics registers the server collectors and the Go runtime collectors
// with reg.
func newMetrics(reg *prometheus.Registry) *metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &metrics{
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted client sessions",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently attached",
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Client commands processed by type",
		}, []string{"type"}),
		commandErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_errors_total",
			Help:      "Client commands rejected by type and error kind",
		}, []string{"type", "kind"}),
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "render",
			Name:      "frames_total",
			Help:      "Frames rendered by mode",
		}, []string{"mode"}),
		frameDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "render",
			Name:      "frame_duration_seconds",
			Help:      "Time from frame submission to completion",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"mode"}),
		framePayload: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "render",
			Name:      "payload_bytes_total",
			Help:      "Bytes of EXR files and pixel buffers streamed to clients",
		}),
		cancelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "render",
			Name:      "cancels_total",
			Help:      "Renders canceled by the client or by a mutating command",
		}),
		pluginGenerates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "plugin",
			Name:      "generate_total",
			Help:      "Plugin generate calls",
		}),
		pluginCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "plugin",
			Name:      "cache_hits_total",
			Help:      "Plugin instance updates answered from the cached output",
		}),
		pluginErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "plugin",
			Name:      "errors_total",
			Help:      "Plugin instance updates that failed",
		}),
		rendererErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "render",
			Name:      "renderer_errors_total",
			Help:      "Errors reported by the ray tracer",
		}),
		archivedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "archive",
			Name:      "frames_total",
			Help:      "Final frames stored in the archive by status",
		}, []string{"status"}),
		renderOutputConn: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "render_output_attached",
			Help:      "1 while a render-output connection is attached",
		}),
	}
}
