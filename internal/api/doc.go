// Package api exposes the orchestrator over HTTP/JSON for the hubctl daemon.
//
// Every response uses one envelope carrying a correlation id; commands
// submitted through the API are audited with the same id. Display updates
// stream as server-sent events from /api/v1/telemetry.
package api
