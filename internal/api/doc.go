// Package api hosts the HTTP server, middleware, and REST handlers for the
// crawl store. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/records to push one fetched crawl record through the processor.
//   - GET /v1/keys?url= to preview the row key a URL is stored under.
//   - GET /v1/pool for writer pool occupancy.
package api
