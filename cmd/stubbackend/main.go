// Stubbackend is a stand-in record service for running the gateway locally.
// It answers /health and echoes every other request as JSON.
//
// Usage:
//
//	go run ./cmd/stubbackend -name AUTH -port 3001
//	go run ./cmd/stubbackend -name AI -port 3003 -delay 5s -no-health
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/ehr-gateway/internal/httpserver"
	"github.com/angeloszaimis/ehr-gateway/pkg/logger"
)

func main() {
	port := flag.Int("port", 3001, "port to listen on")
	name := flag.String("name", "AUTH", "service name reported in responses")
	delay := flag.Duration("delay", 0, "delay before every non-health response")
	noHealth := flag.Bool("no-health", false, "answer /health with 404")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logger.New(*level, false, "dev").With(slog.String("service", *name))

	stub := newStub(*name, *delay, !*noHealth, log)

	srv, err := httpserver.New(fmt.Sprintf(":%d", *port), stub, httpserver.Options{
		ForwardTimeout: *delay,
		Logger:         log,
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info("Stub backend listening", slog.String("addr", srv.Addr()))
	if err := srv.Start(); err != nil {
		log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
