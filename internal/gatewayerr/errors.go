package gatewayerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Kind classifies a gateway-side failure.
type Kind int

const (
	KindInternal Kind = iota
	KindRouteNotFound
	KindCorsDenied
	KindConnectionRefused
	KindDNSFailure
	KindTimeout
	KindUnreachable
	KindClientGone
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindRouteNotFound:
		return "route_not_found"
	case KindCorsDenied:
		return "cors_denied"
	case KindConnectionRefused:
		return "connection_refused"
	case KindDNSFailure:
		return "dns_failure"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindClientGone:
		return "client_gone"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "internal"
	}
}

// ForwardError is a failed forwarding attempt to a named backend. Err is kept
// for logging only and never reaches the client.
type ForwardError struct {
	Kind    Kind
	Service string
	Target  string
	Err     error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Service, e.Target, e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// Body is the single error schema returned to clients.
type Body struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Service   string `json:"service,omitempty"`
	Target    string `json:"target,omitempty"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Classify maps a transport error to a ForwardError.
func Classify(service, target string, err error) *ForwardError {
	return &ForwardError{
		Kind:    kindOf(err),
		Service: service,
		Target:  target,
		Err:     err,
	}
}

func kindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	if errors.Is(err, context.Canceled) {
		return KindClientGone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNSFailure
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindUnreachable
}

// Translate returns the status code and body for a forwarding failure.
func Translate(fe *ForwardError) (int, Body) {
	now := timestamp()

	switch fe.Kind {
	case KindConnectionRefused, KindDNSFailure, KindUnreachable:
		return http.StatusBadGateway, Body{
			Error:     "Bad Gateway",
			Message:   fe.Service + " service is unavailable",
			Service:   fe.Service,
			Target:    fe.Target,
			Timestamp: now,
		}
	case KindTimeout:
		return http.StatusServiceUnavailable, Body{
			Error:     "Service temporarily unavailable",
			Message:   fe.Service + " service did not respond in time",
			Service:   fe.Service,
			Timestamp: now,
		}
	case KindCircuitOpen:
		return http.StatusServiceUnavailable, Body{
			Error:     "Service temporarily unavailable",
			Message:   fe.Service + " service is failing, retry later",
			Service:   fe.Service,
			Timestamp: now,
		}
	default:
		return http.StatusInternalServerError, Internal()
	}
}

// NotFound is the body for a path no route matches.
func NotFound(method, path string) Body {
	return Body{
		Error:     "Route not found",
		Message:   "The requested endpoint does not exist",
		Path:      path,
		Method:    method,
		Timestamp: timestamp(),
	}
}

// Internal is the body for an unexpected failure inside the gateway.
func Internal() Body {
	return Body{
		Error:     "Internal gateway error",
		Message:   "The gateway failed to process the request",
		Timestamp: timestamp(),
	}
}

type startedWriter interface {
	Written() bool
}

// Write sends body as JSON with the given status. It does nothing when the
// response has already started, so a late failure never double-sends.
func Write(w http.ResponseWriter, status int, body Body) {
	if sw, ok := w.(startedWriter); ok && sw.Written() {
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteForwardError translates fe and writes the result.
func WriteForwardError(w http.ResponseWriter, fe *ForwardError) {
	status, body := Translate(fe)
	Write(w, status, body)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
