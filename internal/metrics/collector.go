package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EventType string

const (
	EventResponseCompleted EventType = "response_completed"
	EventForwardFailed     EventType = "forward_failed"
	EventProbeCompleted    EventType = "probe_completed"
	EventRouteMissed       EventType = "route_missed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Service    string
	Method     string
	StatusCode int
	Duration   time.Duration
	// Status is the probe outcome for EventProbeCompleted.
	Status string
	// Kind is the failure classification for EventForwardFailed.
	Kind string
}

// Sink accepts metric events. Implementations must not block the caller.
type Sink interface {
	Record(event MetricEvent)
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	registry *prometheus.Registry
	logger   *slog.Logger
	dropped  atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(registry),
		registry: registry,
		logger:   logger,
	}
}

// Record queues an event. When the buffer is full the event is dropped and
// counted rather than stalling the request path.
func (c *Collector) Record(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Service, event.Method, event.StatusCode, event.Duration)

	case EventForwardFailed:
		c.metrics.RecordFailure(event.Service, event.Kind)

	case EventProbeCompleted:
		c.metrics.RecordProbe(event.Service, event.Status, event.Duration)

	case EventRouteMissed:
		c.metrics.RecordRouteMiss()

	default:
		c.logger.Debug("Unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
