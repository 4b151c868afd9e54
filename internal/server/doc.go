// Package server exposes the HTTP API: chunk ingestion, session finalize,
// transcript processing, health, and Prometheus metrics.
package server
