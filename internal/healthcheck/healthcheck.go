package healthcheck

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/ehr-gateway/internal/backend"
	"github.com/angeloszaimis/ehr-gateway/internal/metrics"
)

const (
	StatusUp      = "UP"
	StatusDown    = "DOWN"
	StatusTimeout = "TIMEOUT"
)

// NoHealthEndpointNote marks a backend that answered on its root path only.
const NoHealthEndpointNote = "no dedicated health endpoint, but service responding"

const (
	defaultTimeout    = 3 * time.Second
	defaultHealthPath = "/health"
)

// Result is the outcome of probing one backend.
type Result struct {
	Service    string    `json:"service"`
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	StatusCode *int      `json:"statusCode,omitempty"`
	Note       string    `json:"note,omitempty"`
	Error      string    `json:"error,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

// Options configures a Prober.
type Options struct {
	// Timeout bounds a whole probe, fallback included.
	Timeout time.Duration
	Path    string
	Client  *http.Client
	Logger  *slog.Logger
	Sink    metrics.Sink
}

// Prober checks backend liveness. It holds no mutable state and is safe for
// concurrent use.
type Prober struct {
	backends   []*backend.Backend
	client     *http.Client
	timeout    time.Duration
	healthPath string
	logger     *slog.Logger
	sink       metrics.Sink
}

func NewProber(backends []*backend.Backend, opts Options) *Prober {
	p := &Prober{
		backends:   backends,
		client:     opts.Client,
		timeout:    opts.Timeout,
		healthPath: opts.Path,
		logger:     opts.Logger,
		sink:       opts.Sink,
	}

	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.healthPath == "" {
		p.healthPath = defaultHealthPath
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	return p
}

// ProbeAll probes every backend concurrently and returns the results in
// registration order. It returns within the probe timeout.
func (p *Prober) ProbeAll(ctx context.Context) []Result {
	results := make([]Result, len(p.backends))

	var g errgroup.Group
	for i, b := range p.backends {
		g.Go(func() error {
			results[i] = p.Probe(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Probe checks a single backend.
func (p *Prober) Probe(ctx context.Context, b *backend.Backend) Result {
	start := time.Now()
	result := p.probe(ctx, b)
	duration := time.Since(start)

	attrs := []any{
		slog.String("service", result.Service),
		slog.String("url", result.URL),
		slog.String("status", result.Status),
		slog.Duration("duration", duration),
	}
	switch result.Status {
	case StatusUp:
		p.logger.Debug("Backend is up", attrs...)
	default:
		p.logger.Warn("Backend is not healthy", append(attrs, slog.String("error", result.Error))...)
	}

	if p.sink != nil {
		p.sink.Record(metrics.MetricEvent{
			Type:     metrics.EventProbeCompleted,
			Service:  result.Service,
			Status:   result.Status,
			Duration: duration,
		})
	}

	return result
}

func (p *Prober) probe(ctx context.Context, b *backend.Backend) Result {
	result := Result{
		Service: b.Name(),
		URL:     b.URL().String(),
	}

	// Both stages share one deadline.
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	code, err := p.get(ctx, b.URL().ResolveReference(&url.URL{Path: p.healthPath}))
	if err == nil && code != http.StatusNotFound {
		result.Status = StatusUp
		result.StatusCode = &code
		result.ObservedAt = time.Now()
		return result
	}

	code, err = p.get(ctx, b.URL().ResolveReference(&url.URL{Path: "/"}))
	result.ObservedAt = time.Now()
	switch {
	case err == nil:
		result.Status = StatusUp
		result.StatusCode = &code
		result.Note = NoHealthEndpointNote
	case isTimeout(err):
		result.Status = StatusTimeout
		result.Error = "no response within " + p.timeout.String()
	default:
		result.Status = StatusDown
		result.Error = err.Error()
	}

	return result
}

func (p *Prober) get(ctx context.Context, target *url.URL) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))

	return res.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
