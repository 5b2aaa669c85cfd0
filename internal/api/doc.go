// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /acquire, /release, /addSeconds, /status for the browser
//     quota governor command protocol.
//   - POST /v1/run to trigger one extraction pass.
//   - GET /v1/extract?url=... and /v1/renderer/health for diagnostics.
package api
