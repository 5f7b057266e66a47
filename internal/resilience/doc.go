// Package resilience groups the fault tolerance used by the pipeline.
//
//   - circuitbreaker: stops calling archive hosts, the catalog database,
//     the outcome broker or the raw store once they keep failing. Each
//     breaker classifies errors, so a 404 or a constraint violation never
//     counts against the dependency.
//   - retry: re-runs report and listing fetches that failed transiently.
//
// Usage:
//
//	hosts := circuitbreaker.NewGroup(circuitbreaker.ReportFetchConfig())
//	raw, err := retry.Fetch(ctx, retry.ReportFetchConfig(), url, func() (entity.RawContent, error) {
//	    return circuitbreaker.Do(hosts.Get(host), func() (entity.RawContent, error) {
//	        return fetchReport(ctx, url)
//	    })
//	})
package resilience
