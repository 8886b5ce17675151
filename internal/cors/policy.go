package cors

import (
	"strconv"
	"strings"
)

type Mode string

const (
	// ModeStrict allows only origins on the allow-list.
	ModeStrict Mode = "strict"
	// ModePermissive allows every origin and flags unlisted ones.
	ModePermissive Mode = "permissive"
)

// Config holds the cross-origin settings a Policy is built from.
type Config struct {
	Mode             Mode
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// Decision is the result of evaluating one Origin header.
type Decision struct {
	Allowed bool
	// AllowedOrigin is echoed in Access-Control-Allow-Origin when non-empty.
	AllowedOrigin string
	// Listed reports whether the origin is on the allow-list.
	Listed bool
}

// Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	mode        Mode
	origins     map[string]struct{}
	methods     string
	headers     string
	exposed     string
	credentials bool
	maxAge      string
}

// NewPolicy builds a Policy. An unknown mode is treated as strict.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{
		mode:        cfg.Mode,
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	if p.mode != ModePermissive {
		p.mode = ModeStrict
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	for _, o := range cfg.AllowedOrigins {
		p.origins[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return p
}

func (p *Policy) Mode() Mode {
	return p.mode
}

// Evaluate decides whether origin may read responses. Requests without an
// Origin header are not cross-origin and are always allowed.
func (p *Policy) Evaluate(origin string) Decision {
	if origin == "" {
		return Decision{Allowed: true}
	}

	_, listed := p.origins[origin]
	if listed || p.mode == ModePermissive {
		return Decision{Allowed: true, AllowedOrigin: origin, Listed: listed}
	}

	return Decision{}
}
