// Package backend forwards gateway requests to upstream services.
//
// Each Backend wraps an httputil.ReverseProxy that rewrites the request path,
// replaces the Host header, propagates the request ID and relays the
// response unmodified. Transport failures are classified and written using
// the gatewayerr shapes. An optional transport wrapper retries idempotent
// requests once.
package backend
