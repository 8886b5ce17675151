package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/angeloszaimis/ehr-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/ehr-gateway/internal/gatewayerr"
	"github.com/angeloszaimis/ehr-gateway/internal/metrics"
)

// Backend is a named upstream service reached through a reverse proxy.
type Backend struct {
	name    string
	url     *url.URL
	proxy   *httputil.ReverseProxy
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
	sink    metrics.Sink
}

// Options configures how a Backend forwards requests.
type Options struct {
	// Timeout bounds a single forwarding attempt. Zero means no bound.
	Timeout time.Duration
	// Retry enables one retry of idempotent requests that failed before a
	// response was received.
	Retry      bool
	RetryDelay time.Duration
	// Breaker, when set, refuses requests while the backend keeps failing.
	Breaker *circuitbreaker.Breaker
	// Transport overrides the outbound transport; nil uses a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
	Sink      metrics.Sink
}

// New creates a Backend for the service name reachable at target.
func New(name string, target *url.URL, opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Backend{
		name:    name,
		url:     target,
		timeout: opts.Timeout,
		breaker: opts.Breaker,
		logger:  logger.With(slog.String("service", name)),
		sink:    opts.Sink,
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.Retry {
		transport = &retryTransport{next: transport, delay: opts.RetryDelay, logger: b.logger}
	}

	b.proxy = &httputil.ReverseProxy{
		Rewrite:        b.rewrite,
		Transport:      transport,
		ModifyResponse: b.modifyResponse,
		ErrorHandler:   b.handleError,
		ErrorLog:       slog.NewLogLogger(b.logger.Handler(), slog.LevelError),
	}

	return b
}

// Name returns the service name, e.g. "AUTH".
func (b *Backend) Name() string {
	return b.name
}

// URL returns the backend base URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Forward relays r to the backend at pc.TargetPath and streams the response
// back to w. Failures are translated and written by the error handler.
func (b *Backend) Forward(w http.ResponseWriter, r *http.Request, pc ProxyContext) {
	ctx := r.Context()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if pc.Received.IsZero() {
		pc.Received = time.Now()
	}
	pc.Service = b.name

	if b.breaker != nil && !b.breaker.Allow() {
		b.logger.Warn("Circuit open, refusing request",
			slog.String("method", pc.Method),
			slog.String("target_path", pc.TargetPath),
			slog.String("request_id", pc.RequestID))
		b.record(metrics.MetricEvent{
			Type:    metrics.EventForwardFailed,
			Service: b.name,
			Method:  pc.Method,
			Kind:    gatewayerr.KindCircuitOpen.String(),
		})
		gatewayerr.WriteForwardError(w, &gatewayerr.ForwardError{
			Kind:    gatewayerr.KindCircuitOpen,
			Service: b.name,
			Target:  b.url.String(),
		})
		return
	}

	b.logger.Debug("Forwarding to backend",
		slog.String("method", pc.Method),
		slog.String("path", r.URL.Path),
		slog.String("target_path", pc.TargetPath),
		slog.String("request_id", pc.RequestID))

	b.proxy.ServeHTTP(w, r.WithContext(WithProxyContext(ctx, pc)))
}

func (b *Backend) rewrite(pr *httputil.ProxyRequest) {
	pc, _ := FromContext(pr.In.Context())

	pr.Out.URL.Path = pc.TargetPath
	pr.Out.URL.RawPath = pc.TargetRawPath
	pr.SetURL(b.url)
	pr.SetXForwarded()

	if pc.RequestID != "" {
		pr.Out.Header.Set(RequestIDHeader, pc.RequestID)
	}
}

func (b *Backend) modifyResponse(resp *http.Response) error {
	// The gateway owns the cross-origin policy; backend CORS headers would
	// duplicate or contradict it.
	for key := range resp.Header {
		if strings.HasPrefix(key, "Access-Control-") {
			resp.Header.Del(key)
		}
	}

	if b.breaker != nil && b.breaker.Success() {
		b.logger.Info("Circuit closed")
	}

	pc, _ := FromContext(resp.Request.Context())
	duration := time.Since(pc.Received)

	b.logger.Info("Backend responded",
		slog.String("method", pc.Method),
		slog.String("target_path", pc.TargetPath),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
		slog.String("request_id", pc.RequestID))

	b.record(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Service:    b.name,
		Method:     pc.Method,
		StatusCode: resp.StatusCode,
		Duration:   duration,
	})

	return nil
}

func (b *Backend) handleError(w http.ResponseWriter, r *http.Request, err error) {
	fe := gatewayerr.Classify(b.name, b.url.String(), err)
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		fe.Kind = gatewayerr.KindTimeout
	}

	pc, _ := FromContext(r.Context())
	attrs := []any{
		slog.String("kind", fe.Kind.String()),
		slog.String("method", pc.Method),
		slog.String("target_path", pc.TargetPath),
		slog.String("origin", pc.Origin),
		slog.Duration("duration", time.Since(pc.Received)),
		slog.String("request_id", pc.RequestID),
		slog.String("error", err.Error()),
	}

	if fe.Kind == gatewayerr.KindClientGone {
		b.logger.Debug("Client went away before backend responded", attrs...)
		if b.breaker != nil {
			b.breaker.Cancel()
		}
		return
	}

	b.logger.Error("Proxy error", attrs...)
	if b.breaker != nil && b.breaker.Failure() {
		b.logger.Warn("Circuit opened", slog.String("kind", fe.Kind.String()))
	}
	b.record(metrics.MetricEvent{
		Type:    metrics.EventForwardFailed,
		Service: b.name,
		Method:  pc.Method,
		Kind:    fe.Kind.String(),
	})

	gatewayerr.WriteForwardError(w, fe)
}

func (b *Backend) record(event metrics.MetricEvent) {
	if b.sink == nil {
		return
	}
	b.sink.Record(event)
}
