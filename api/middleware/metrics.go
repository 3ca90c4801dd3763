package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

// Metrics observes every request under its chi route pattern, so path
// parameters never become label values.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapWriter(w, r)
			next.ServeHTTP(ww, r)
			m.Observe(r.Method, routePattern(r), statusOf(ww), time.Since(start))
		})
	}
}
