// Package api implements the HTTP REST API and WebSocket server for the arbiter.
//
// This package provides:
//   - REST endpoints for taking, listing and deleting command locks
//   - Command issue with a per-call wait bound
//   - Catalog and handler status reads (commands, endpoints)
//   - Audit trail queries for administrators
//   - WebSocket hub streaming lock and dispatch activity
//   - JSON and Prometheus metrics
//
// # Architecture
//
// Agents call the API with a bearer token whose subject is their agent
// identity. Lock requests go to the arbitration service; issue requests go
// to the dispatcher, which resolves the endpoint handler and waits for its
// result. The HTTP status of an issue call is always 200: the outcome
// (SUCCESS, FAILURE, TIMEOUT, NOT_AUTHORIZED, UNAVAILABLE) is in the body.
//
// # Security
//
// Every route except /health and the metrics endpoints requires a valid
// HS256 token. Roles (agent, operator, admin) map to permissions in the
// auth package. WebSocket connections use single-use tickets so the token
// never appears in a URL.
package api
