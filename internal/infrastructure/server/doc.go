// Package server exposes a running terminal over HTTP.
//
// Routes:
//   - GET /            viewer page (gzip)
//   - GET /stream      viewer websocket
//   - GET /health      session state and metric snapshot as JSON
//   - GET /transcript  scanned output so far as text (gzip)
//   - GET /metrics     Prometheus metrics
package server
