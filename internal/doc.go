// Package internal holds the implementation packages of otuserver.
//
// # Package Organization
//
//   - server: listening socket, worker pool and per-connection state machine
//   - poller: readiness notification over epoll, one instance per worker
//   - processor: request parsing, target resolution and response building
//   - templates: embedded or on-disk HTML templates for error pages
//   - errors: typed errors carrying the HTTP status they map to
//   - metrics: OpenTelemetry instruments and the OTLP exporter
//   - config: viper-backed configuration with validation
//   - logging: structured logger used by every package
//   - version: build metadata
//
// # Request Flow
//
// A worker accepts a connection, reads until the request line is complete,
// hands the bytes to the processor and writes the response back before
// closing. Each connection is owned by exactly one worker for its lifetime,
// so no connection state is shared between goroutines.
//
// # Failure Handling
//
// A fault on one connection closes only that connection. Poller failures end
// the owning worker and are reported when the pool shuts down.
package internal
