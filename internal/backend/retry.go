package backend

import (
	"log/slog"
	"net/http"
	"time"
)

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodTrace:   true,
}

// retryTransport retries an idempotent request once, after a fixed delay,
// when the first attempt failed before any response arrived.
type retryTransport struct {
	next   http.RoundTripper
	delay  time.Duration
	logger *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err == nil || !retryable(req) {
		return resp, err
	}

	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	select {
	case <-req.Context().Done():
		return nil, err
	case <-timer.C:
	}

	retry := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		retry.Body = body
	}

	t.logger.Warn("Retrying request",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("error", err.Error()))

	return t.next.RoundTrip(retry)
}

func retryable(req *http.Request) bool {
	if !idempotentMethods[req.Method] {
		return false
	}
	if req.Context().Err() != nil {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
