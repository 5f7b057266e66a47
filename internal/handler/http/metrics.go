package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sonde-catalog/internal/handler/http/pathutil"
	"sonde-catalog/internal/handler/http/responsewriter"
	"sonde-catalog/internal/observability/metrics"
)

// MetricsMiddleware records request count, latency and sizes. Paths are
// normalized first so item identifiers never become label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		// /collections/dropsondes/items/sonde_001 -> /collections/:collection/items/:id
		path := pathutil.NormalizePath(r.URL.Path)

		rw := responsewriter.Wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r)

		metrics.RecordHTTPRequest(
			r.Method,
			path,
			strconv.Itoa(rw.StatusCode()),
			time.Since(start),
			int(r.ContentLength),
			rw.BytesWritten(),
		)
	})
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
