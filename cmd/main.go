package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/ehr-gateway/config"
	"github.com/angeloszaimis/ehr-gateway/internal/backend"
	"github.com/angeloszaimis/ehr-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/ehr-gateway/internal/cors"
	"github.com/angeloszaimis/ehr-gateway/internal/handler"
	"github.com/angeloszaimis/ehr-gateway/internal/healthcheck"
	"github.com/angeloszaimis/ehr-gateway/internal/httpserver"
	"github.com/angeloszaimis/ehr-gateway/internal/metrics"
	"github.com/angeloszaimis/ehr-gateway/internal/route"
	"github.com/angeloszaimis/ehr-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	collector.Start(ctx)

	gateway, err := buildGateway(cfg, log, collector)
	if err != nil {
		log.Error("Failed to build gateway", slog.Any("err", err))
		os.Exit(1)
	}

	srv, err := httpserver.New(cfg.Server.Address, gateway, httpserver.Options{
		ForwardTimeout: cfg.ForwardTimeout(),
		Logger:         log,
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("API Gateway started", slog.String("addr", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// buildGateway wires the route table, prober and CORS policy into the
// complete handler chain.
func buildGateway(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (http.Handler, error) {
	table, err := buildRouteTable(cfg, log, collector)
	if err != nil {
		return nil, err
	}

	for _, e := range table.Entries() {
		log.Info("Route registered",
			slog.String("prefix", e.Prefix),
			slog.String("service", e.Backend.Name()),
			slog.String("target", e.Backend.URL().String()))
	}

	prober := healthcheck.NewProber(table.Backends(), healthcheck.Options{
		Timeout: cfg.HealthCheckTimeout(),
		Path:    cfg.HealthCheck.Path,
		Logger:  log,
		Sink:    collector,
	})

	policy := cors.NewPolicy(cors.Config{
		Mode:             cors.Mode(cfg.CORS.Mode),
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})
	if policy.Mode() == cors.ModePermissive {
		log.Warn("CORS is permissive: every origin is allowed",
			slog.Int("listed_origins", len(cfg.CORS.AllowedOrigins)))
	}

	gateway := handler.NewGatewayHandler(log, table, collector)
	status := handler.NewStatusHandler(log, prober, table, cfg.Port())

	return handler.Chain(
		setupRouter(gateway, status, collector.Handler()),
		handler.RequestID(),
		handler.AccessLog(log),
		handler.Recover(log),
		cors.Middleware(policy, log),
	), nil
}

func buildRouteTable(cfg *config.Config, log *slog.Logger, sink metrics.Sink) (*route.Table, error) {
	entries := make([]route.Entry, 0, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("backend %s: invalid url %q", bc.Name, bc.URL)
		}

		opts := backend.Options{
			Timeout:    cfg.ForwardTimeout(),
			Retry:      cfg.Forward.Retry.Enabled,
			RetryDelay: cfg.RetryDelay(),
			Logger:     log,
			Sink:       sink,
		}
		if cb := cfg.Forward.CircuitBreaker; cb.Enabled {
			opts.Breaker = circuitbreaker.New(cb.Threshold, cfg.BreakerCooldown())
		}

		b := backend.New(bc.Name, u, opts)

		entries = append(entries, route.Entry{
			Prefix:    bc.Prefix,
			Backend:   b,
			RewriteTo: bc.RewriteTo,
			Endpoints: bc.Endpoints,
		})
	}

	table, err := route.New(entries)
	if err != nil {
		return nil, fmt.Errorf("build route table: %w", err)
	}

	return table, nil
}
