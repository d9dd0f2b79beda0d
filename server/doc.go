// Package server runs scribe's HTTP API on Gin behind an h2c handler, so
// HTTP/2 clients can hold many SSE streams over one cleartext connection.
//
// Middleware (server/middleware) wraps the whole handler, Gin routes
// included: recovery, request IDs, CORS, body size limits, request
// logging and request metrics.
//
// Endpoints (server/endpoint):
//
//   - /health: component health aggregation
//   - /info: build and uptime information
package server
