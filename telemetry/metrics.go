// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CommentsReceived     prometheus.Counter
	CommentsFlagged      prometheus.Counter
	ChunksDelivered      prometheus.Counter
	RoutesTotal          *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	ResponsesSuppressed  *prometheus.CounterVec

	// Histograms (seconds)
	HandleDuration prometheus.Observer

	// Gauges
	QueueDepthGauge  prometheus.Gauge
	HistorySizeGauge prometheus.Gauge
	StreamConnected  prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommentsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chatmod_comments_total", Help: "Number of comments processed by the pipeline"})
		CommentsFlagged = promauto.NewCounter(prometheus.CounterOpts{Name: "chatmod_comments_flagged_total", Help: "Number of comments flagged by moderation"})
		ChunksDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "chatmod_chunks_delivered_total", Help: "Number of response chunks injected into the chat"})
		RoutesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatmod_routes_total", Help: "Comments per routing decision"}, []string{"route"})
		CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatmod_collaborator_failures_total", Help: "Failed calls to external collaborators"}, []string{"step"})
		ResponsesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatmod_responses_suppressed_total", Help: "Generated responses not delivered"}, []string{"reason"})
		HandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatmod_handle_duration_seconds", Help: "Per-comment pipeline duration seconds, including chunk pacing", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatmod_queue_depth", Help: "Events waiting for the pipeline consumer"})
		HistorySizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatmod_history_size", Help: "Comments held in the rolling history"})
		StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatmod_stream_connected", Help: "Stream connection state connected=1 disconnected=0"})
	})
}

// IncComments counts one processed comment.
func IncComments() {
	if CommentsReceived != nil {
		CommentsReceived.Inc()
	}
}

// IncFlagged counts one flagged comment.
func IncFlagged() {
	if CommentsFlagged != nil {
		CommentsFlagged.Inc()
	}
}

// IncChunksDelivered counts one injected chunk.
func IncChunksDelivered() {
	if ChunksDelivered != nil {
		ChunksDelivered.Inc()
	}
}

// IncRoute counts one routing decision.
func IncRoute(route string) {
	if RoutesTotal != nil {
		RoutesTotal.WithLabelValues(route).Inc()
	}
}

// IncCollaboratorFailure counts one failed collaborator call for step.
func IncCollaboratorFailure(step string) {
	if CollaboratorFailures != nil {
		CollaboratorFailures.WithLabelValues(step).Inc()
	}
}

// IncSuppressed counts one undelivered response.
func IncSuppressed(reason string) {
	if ResponsesSuppressed != nil {
		ResponsesSuppressed.WithLabelValues(reason).Inc()
	}
}

// SetQueueDepth records the number of buffered events.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetHistorySize records the rolling history length.
func SetHistorySize(n int) {
	if HistorySizeGauge != nil {
		HistorySizeGauge.Set(float64(n))
	}
}

// UpdateStreamGauge sets gauge to 1 if connected else 0.
func UpdateStreamGauge(connected bool) {
	if StreamConnected != nil {
		if connected {
			StreamConnected.Set(1)
		} else {
			StreamConnected.Set(0)
		}
	}
}

// ObserveHandleDuration records one pipeline run.
func ObserveHandleDuration(d time.Duration) {
	if HandleDuration != nil {
		HandleDuration.Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
