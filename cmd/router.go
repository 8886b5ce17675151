package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/angeloszaimis/ehr-gateway/config"
	"github.com/angeloszaimis/ehr-gateway/internal/handler"
)

func setupRouter(gateway *handler.GatewayHandler, status *handler.StatusHandler, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.SkipClean(true)

	router.HandleFunc("/health", status.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/status", status.Status).Methods(http.MethodGet)
	router.HandleFunc("/api", status.Directory).Methods(http.MethodGet)
	router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	router.PathPrefix(config.APIPrefix).Handler(gateway)

	router.NotFoundHandler = http.HandlerFunc(gateway.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(gateway.NotFound)

	return router
}
