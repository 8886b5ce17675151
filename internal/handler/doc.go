// Package handler implements the gateway's HTTP handlers: forwarding of
// /api/* traffic to the resolved backend, the status endpoints and the
// middleware chain that wraps them.
package handler
