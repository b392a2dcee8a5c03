package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storyHTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "khobor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of story HTTP requests broken down by endpoint and status class.",
	}, []string{"endpoint", "result"})

	storyHTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "khobor",
		Subsystem: "http",
		Name:      "latency_seconds",
		Help:      "Latency distribution for story HTTP requests.",
		Buckets: []float64{
			0.001, 0.005, 0.01, 0.05,
			0.1, 0.25, 0.5, 1, 2, 5,
		},
	}, []string{"endpoint", "result"})
)

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// instrument records request count and latency for endpoint.
func instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		result := strconv.Itoa(rec.status/100) + "xx"
		storyHTTPRequests.WithLabelValues(endpoint, result).Inc()
		storyHTTPLatency.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
	}
}
