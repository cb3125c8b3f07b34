// Package api serves the operational HTTP surface: health probes, the
// Prometheus exposition endpoint, and the token-guarded admin API for
// browsing stored notes.
package api
