// Package api hosts the HTTP server for background scans. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans to submit a scan, GET /v1/scans/{scan_id} to read it.
//   - POST /v1/scans/{scan_id}/cancel, /pause and /resume to steer a running scan.
package api
