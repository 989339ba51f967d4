// Package metrics provides Prometheus metrics for the lexreview client.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend request metrics
	backendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexreview_backend_requests_total",
			Help: "Total number of requests sent to the analysis backend",
		},
		[]string{"op", "status"},
	)

	backendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexreview_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"op"},
	)

	// Upload metrics
	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexreview_upload_bytes_total",
			Help: "Total bytes of file content uploaded",
		},
	)

	uploadFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexreview_upload_files_total",
			Help: "Total files uploaded by outcome",
		},
		[]string{"status"},
	)

	// Processing metrics
	processingInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexreview_processing_in_flight",
			Help: "Number of analysis submissions awaiting a response",
		},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexreview_processing_duration_seconds",
			Help:    "Wall time of analysis submissions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	resultNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexreview_result_nodes_total",
			Help: "Total result nodes received from analyses",
		},
	)

	// Export metrics
	exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexreview_exports_total",
			Help: "Total document exports by outcome",
		},
		[]string{"status"},
	)

	sinkOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexreview_sink_operation_duration_seconds",
			Help:    "Artifact sink write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "status"},
	)

	// Session metrics
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexreview_login_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"},
	)

	// Event metrics
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexreview_events_total",
			Help: "Total status events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records one backend request.
func RecordRequest(op, status string, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(op, status).Inc()
	backendRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordUploadBytes records file content bytes accepted by the backend.
func RecordUploadBytes(n int64) {
	if n > 0 {
		uploadBytesTotal.Add(float64(n))
	}
}

// RecordUpload records the outcome of one file upload.
func RecordUpload(success bool) {
	uploadFilesTotal.WithLabelValues(outcome(success)).Inc()
}

// ProcessingStarted marks an analysis submission as outstanding.
func ProcessingStarted() {
	processingInFlight.Inc()
}

// ProcessingFinished records a completed submission.
func ProcessingFinished(duration time.Duration, nodes int, success bool) {
	processingInFlight.Dec()
	processingDuration.WithLabelValues(outcome(success)).Observe(duration.Seconds())
	if nodes > 0 {
		resultNodesTotal.Add(float64(nodes))
	}
}

// RecordExport records a document export.
func RecordExport(success bool) {
	exportsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordSinkWrite records an artifact sink write.
func RecordSinkWrite(backend string, duration time.Duration, success bool) {
	sinkOperationDuration.WithLabelValues(backend, outcome(success)).Observe(duration.Seconds())
}

// RecordLogin records a login attempt.
func RecordLogin(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordEvent records a status event publication.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}
