// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the active category, cursor and miss count.
//   - GET and POST /v1/frontier to inspect or seed pending listing URLs.
//   - POST /v1/run to execute one unit of work.
package api
