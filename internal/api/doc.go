// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes, /metrics for Prometheus scraping.
//   - /v1/libraries, /v1/pipelines, /v1/jobs for the management surface.
//   - POST /v1/jobs/{id}/stages/{id}/events, /v1/jobs/{id}/results, and
//     /v1/embeddings for worker ingest.
//   - GET /v1/jobs/{id}/events for the live update stream (SSE).
//   - POST /v1/search for the blended similarity search.
//
// Handlers parse and validate input, call exactly one service, and map
// outcomes to JSON with status codes.
package api
