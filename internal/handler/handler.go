package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/ehr-gateway/internal/backend"
	"github.com/angeloszaimis/ehr-gateway/internal/gatewayerr"
	"github.com/angeloszaimis/ehr-gateway/internal/metrics"
	"github.com/angeloszaimis/ehr-gateway/internal/route"
)

// GatewayHandler resolves a request against the route table and forwards it
// to the matching backend.
type GatewayHandler struct {
	logger *slog.Logger
	table  *route.Table
	sink   metrics.Sink
}

func NewGatewayHandler(logger *slog.Logger, table *route.Table, sink metrics.Sink) *GatewayHandler {
	return &GatewayHandler{
		logger: logger,
		table:  table,
		sink:   sink,
	}
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entry, err := h.table.Resolve(r.Method, r.URL.Path)
	if err != nil {
		var nf *route.NotFoundError
		if !errors.As(err, &nf) {
			h.logger.Error("Route resolution failed", slog.String("error", err.Error()))
			gatewayerr.Write(w, http.StatusInternalServerError, gatewayerr.Internal())
			return
		}
		h.NotFound(w, r)
		return
	}

	pc := backend.ProxyContext{
		Prefix:     entry.Prefix,
		TargetPath: entry.Rewrite(r.URL.Path),
		Method:     r.Method,
		Origin:     r.Header.Get("Origin"),
		RequestID:  r.Header.Get(backend.RequestIDHeader),
		Received:   time.Now(),
	}
	if r.URL.RawPath != "" && strings.HasPrefix(r.URL.RawPath, entry.Prefix) {
		pc.TargetRawPath = entry.Rewrite(r.URL.RawPath)
	}

	entry.Backend.Forward(w, r, pc)
}

// NotFound answers any request no route or endpoint matches.
func (h *GatewayHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Route not found",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", r.Header.Get(backend.RequestIDHeader)))

	if h.sink != nil {
		h.sink.Record(metrics.MetricEvent{
			Type:   metrics.EventRouteMissed,
			Method: r.Method,
		})
	}

	gatewayerr.Write(w, http.StatusNotFound, gatewayerr.NotFound(r.Method, r.URL.RequestURI()))
}
