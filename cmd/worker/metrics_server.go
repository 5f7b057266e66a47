package main

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	workerPkg "sonde-catalog/internal/infra/worker"
)

// mountStatusRoutes adds the scrape endpoint and the last run report to
// the health server:
//   - GET /metrics: Prometheus metrics
//   - GET /status: JSON report of the last archive run, 404 before the first
func mountStatusRoutes(s *workerPkg.HealthServer, runner *workerPkg.Runner) {
	s.Handle("GET /metrics", promhttp.Handler())
	s.Handle("GET /status", runner.StatusHandler())
}
