// Package metrics exposes prometheus instrumentation for the
// notification engine: socket lifecycle, frame routing, REST sources
// and ticket acknowledgements.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Socket metrics
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrnotify_connection_state",
			Help: "Current socket state (0=closed, 1=connecting, 2=open)",
		},
	)

	ReconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrnotify_reconnects_scheduled_total",
			Help: "Total number of reconnect attempts scheduled",
		},
	)

	DialErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrnotify_dial_errors_total",
			Help: "Total number of failed socket dials",
		},
	)

	// Frame metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrnotify_frames_received_total",
			Help: "Total number of routed inbound frames by kind",
		},
		[]string{"kind"}, // "chat_message", "activity", "status_update", "error"
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrnotify_frames_dropped_total",
			Help: "Total number of inbound frames dropped",
		},
		[]string{"reason"}, // "invalid_json", "malformed", "unroutable"
	)

	// Source metrics
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hrnotify_source_fetch_duration_seconds",
			Help:    "Duration of channel source fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel", "status"},
	)

	// Read state metrics
	AcksSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrnotify_acks_sent_total",
			Help: "Total number of server acknowledgements attempted",
		},
	)

	AckFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hrnotify_ack_failures_total",
			Help: "Total number of server acknowledgements that failed",
		},
	)

	UnreadTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hrnotify_unread_total",
			Help: "Current total unread count for the session role",
		},
	)
)

// RecordFetch records one source fetch.
func RecordFetch(channel string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SourceFetchDuration.WithLabelValues(channel, status).Observe(duration.Seconds())
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics on %s: %w", addr, err)
	}
}
