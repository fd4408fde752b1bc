// Package api provides the read-only HTTP status server for kasametrics.
//
// Endpoints:
//
//	GET /healthz          scheduler state and backend health (503 if any check fails)
//	GET /metrics          Prometheus exposition of the collector metrics
//	GET /api/v1/cycles    recent cycle reports, newest first (?limit=N)
//	GET /api/v1/devices   last known poll status of every configured device
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
