package backend

import (
	"context"
	"time"
)

// RequestIDHeader carries the per-request correlation ID to backends.
const RequestIDHeader = "X-Request-ID"

// ProxyContext is the per-request forwarding state. It lives in the request
// context and is discarded with it.
type ProxyContext struct {
	Service       string
	Prefix        string
	TargetPath    string
	TargetRawPath string
	Method        string
	Origin        string
	RequestID     string
	Received      time.Time
}

type proxyContextKey struct{}

func WithProxyContext(ctx context.Context, pc ProxyContext) context.Context {
	return context.WithValue(ctx, proxyContextKey{}, pc)
}

func FromContext(ctx context.Context) (ProxyContext, bool) {
	pc, ok := ctx.Value(proxyContextKey{}).(ProxyContext)
	return pc, ok
}
