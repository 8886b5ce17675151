// Package httpserver wraps http.Server with address validation, timeouts
// sized for proxied traffic and graceful shutdown.
package httpserver
