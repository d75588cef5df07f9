package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/gridreplay/pkg/logger"
	"github.com/okian/gridreplay/pkg/metrics"
)

const nanosPerMillisecond = 1e6

// MetricsMiddleware records request count, latency and error class per
// endpoint and logs each request at debug level with its session.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	log := logger.Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(elapsed.Nanoseconds())/nanosPerMillisecond)
		if rec.status >= http.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorClass(rec.status))
		}

		log.Debug(r.Context(), "request served",
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.String("session_id", r.URL.Query().Get("session_id")),
			logger.Int("status", rec.status),
			logger.Float64("duration_ms", float64(elapsed.Nanoseconds())/nanosPerMillisecond))
	}
}

// errorClass buckets a failing status into a low-cardinality metric label.
func errorClass(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "backpressure"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
