package route

import (
	"fmt"
	"sort"
	"strings"

	"github.com/angeloszaimis/ehr-gateway/internal/backend"
)

// Entry maps a path prefix to the backend that serves it.
type Entry struct {
	Prefix  string
	Backend *backend.Backend
	// RewriteTo replaces the matched prefix; empty strips it.
	RewriteTo string
	// Endpoints documents the routes this backend offers.
	Endpoints []string
}

// Rewrite maps an incoming path to the backend path.
func (e *Entry) Rewrite(path string) string {
	rest := strings.TrimPrefix(path, e.Prefix)
	out := strings.TrimSuffix(e.RewriteTo, "/") + rest
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

func (e *Entry) matches(path string) bool {
	if !strings.HasPrefix(path, e.Prefix) {
		return false
	}
	return len(path) == len(e.Prefix) || path[len(e.Prefix)] == '/'
}

// NotFoundError is returned when no entry matches a path.
type NotFoundError struct {
	Method string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no route for %s %s", e.Method, e.Path)
}

// Table is an immutable prefix table. It is safe for concurrent use.
type Table struct {
	entries []*Entry
	// byLength holds the same entries ordered longest prefix first.
	byLength []*Entry
}

// New builds a table from entries in registration order.
func New(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make([]*Entry, 0, len(entries)),
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		e := entries[i]
		if e.Backend == nil {
			return nil, fmt.Errorf("route %q: backend is required", e.Prefix)
		}
		if !strings.HasPrefix(e.Prefix, "/") || (len(e.Prefix) > 1 && strings.HasSuffix(e.Prefix, "/")) {
			return nil, fmt.Errorf("route %q: prefix must start with / and not end with /", e.Prefix)
		}
		if seen[e.Prefix] {
			return nil, fmt.Errorf("route %q: duplicate prefix", e.Prefix)
		}
		seen[e.Prefix] = true
		t.entries = append(t.entries, &e)
	}

	t.byLength = append([]*Entry(nil), t.entries...)
	sort.SliceStable(t.byLength, func(i, j int) bool {
		return len(t.byLength[i].Prefix) > len(t.byLength[j].Prefix)
	})

	return t, nil
}

// Resolve returns the entry with the longest prefix matching path on a
// segment boundary.
func (t *Table) Resolve(method, path string) (*Entry, error) {
	for _, e := range t.byLength {
		if e.matches(path) {
			return e, nil
		}
	}
	return nil, &NotFoundError{Method: method, Path: path}
}

// Entries returns the entries in registration order.
func (t *Table) Entries() []*Entry {
	return append([]*Entry(nil), t.entries...)
}

// Backends returns every entry's backend in registration order.
func (t *Table) Backends() []*backend.Backend {
	backends := make([]*backend.Backend, 0, len(t.entries))
	for _, e := range t.entries {
		backends = append(backends, e.Backend)
	}
	return backends
}
