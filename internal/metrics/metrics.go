package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nicheradar_fetch_requests_total",
			Help: "Total number of outbound fetch attempts executed",
		},
		[]string{"provider", "status", "blocked"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nicheradar_fetch_duration_seconds",
			Help:    "Duration of outbound fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 90},
		},
		[]string{"provider"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nicheradar_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"provider"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nicheradar_stage_duration_seconds",
			Help:    "Duration of research pipeline stages in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	ProgressEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nicheradar_progress_events_total",
			Help: "Total progress events published across all tasks",
		},
	)
)

// RecordFetch updates fetch metrics for one attempt. A status of zero means
// the request failed before an HTTP response arrived.
func RecordFetch(provider string, status int, blocked bool, dur time.Duration, bytes int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	blockedStr := "false"
	if blocked {
		blockedStr = "true"
	}

	FetchRequestsTotal.WithLabelValues(provider, statusStr, blockedStr).Inc()
	FetchDuration.WithLabelValues(provider).Observe(dur.Seconds())
	FetchBytesTotal.WithLabelValues(provider).Add(float64(bytes))
}

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage string, dur time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(dur.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
