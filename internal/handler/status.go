package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/ehr-gateway/internal/healthcheck"
	"github.com/angeloszaimis/ehr-gateway/internal/route"
)

// Version is reported by the API directory.
const Version = "1.0.0"

type healthResponse struct {
	Status        string               `json:"status"`
	Port          string               `json:"port"`
	Services      map[string]string    `json:"services"`
	ServiceHealth []healthcheck.Result `json:"serviceHealth"`
	Timestamp     string               `json:"timestamp"`
}

type statusResponse struct {
	Gateway  string               `json:"gateway"`
	Services []healthcheck.Result `json:"services"`
}

type directoryResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
	Debug     map[string]string `json:"debug"`
}

// StatusHandler serves the gateway's own endpoints. Health and Status probe
// the backends on every call; Directory never touches them.
type StatusHandler struct {
	logger *slog.Logger
	prober *healthcheck.Prober
	table  *route.Table
	port   string
}

func NewStatusHandler(logger *slog.Logger, prober *healthcheck.Prober, table *route.Table, port string) *StatusHandler {
	return &StatusHandler{
		logger: logger,
		prober: prober,
		table:  table,
		port:   port,
	}
}

// Health always answers 200; backend failures show up in serviceHealth.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	for _, e := range h.table.Entries() {
		services[e.Backend.Name()] = e.Backend.URL().String()
	}

	h.writeJSON(w, healthResponse{
		Status:        "API Gateway is running",
		Port:          h.port,
		Services:      services,
		ServiceHealth: h.prober.ProbeAll(r.Context()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, statusResponse{
		Gateway:  "UP",
		Services: h.prober.ProbeAll(r.Context()),
	})
}

func (h *StatusHandler) Directory(w http.ResponseWriter, r *http.Request) {
	endpoints := make(map[string]string)
	for _, e := range h.table.Entries() {
		key := strings.ToLower(e.Backend.Name())
		if len(e.Endpoints) > 0 {
			endpoints[key] = strings.Join(e.Endpoints, ", ")
		} else {
			endpoints[key] = "ANY " + e.Prefix + "/*"
		}
	}

	h.writeJSON(w, directoryResponse{
		Message:   "QuickEHR API Gateway",
		Version:   Version,
		Status:    "UP",
		Endpoints: endpoints,
		Debug: map[string]string{
			"health": "GET /health",
			"status": "GET /api/status",
		},
	})
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", slog.String("error", err.Error()))
	}
}
