package middleware

import (
	"net/http"
	"time"

	"github.com/Squirrel-Richard/myanus-platform/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestMetrics records count and latency per route. route is the pattern
// label, not the raw path, to keep label cardinality bounded.
func RequestMetrics(rec *metrics.Recorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			rec.ObserveRequest(r.Method, route, sr.status, time.Since(start))
		})
	}
}
