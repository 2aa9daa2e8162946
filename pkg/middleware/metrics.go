package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder receives one observation per request. *metrics.Collector
// satisfies it.
type HTTPRecorder interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
}

// Metrics returns middleware that records request counts and latency.
// The endpoint label is the matched ServeMux pattern so path parameters do
// not explode label cardinality; unmatched requests are labeled "unmatched".
func Metrics(recorder HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			endpoint := r.Pattern
			if endpoint == "" {
				endpoint = "unmatched"
			}
			recorder.RecordHTTPRequest(r.Method, endpoint, wrapped.statusCode, time.Since(start))
		})
	}
}
