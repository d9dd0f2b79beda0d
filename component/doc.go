// Package component defines the lifecycle contract shared by scribe's
// long-running parts: the HTTP server, the event hub, the session manager
// and the telemetry exporters.
//
// Components are registered with a Registry, started in registration order,
// stopped in reverse order and polled for health by the /health endpoint.
package component
