// Package source defines pluggable candidate providers for conflict
// resolution and a registry that fans a field lookup out across them.
package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/model"
)

// Provider fetches candidate values for a provider field from one
// external source (a state registry, an insurer roster, a scraped
// website).
type Provider interface {
	// Name identifies the source in logs and source_detail columns.
	Name() string
	// Supports reports whether this source can produce candidates for the
	// given field.
	Supports(field string) bool
	// FetchCandidates returns zero or more candidate values for the field.
	FetchCandidates(ctx context.Context, p *model.Provider, field string) ([]model.Candidate, error)
}

// Registry holds the configured sources. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Provider
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Provider)}
}

// Register adds a source. Registering the same name twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.sources[name]; ok {
		return eris.Errorf("source: %q already registered", name)
	}
	r.sources[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sources[name]
	return p, ok
}

// List returns registered source names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FetchAll gathers candidates for one field from every source that
// supports it. A failing source is logged and skipped; one flaky
// directory must not block adjudication of the rest.
func (r *Registry) FetchAll(ctx context.Context, provider *model.Provider, field string) []model.Candidate {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	srcs := make(map[string]Provider, len(r.sources))
	for k, v := range r.sources {
		srcs[k] = v
	}
	r.mu.RUnlock()

	var out []model.Candidate
	for _, name := range names {
		src := srcs[name]
		if !src.Supports(field) {
			continue
		}
		cands, err := src.FetchCandidates(ctx, provider, field)
		if err != nil {
			zap.L().Warn("candidate source failed, skipping",
				zap.String("source", name),
				zap.String("field", field),
				zap.String("provider_id", provider.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, cands...)
	}
	return out
}

// StaticProvider serves fixed candidates from configuration. It stands
// in for live registry integrations in tests and demos.
type StaticProvider struct {
	name    string
	byField map[string][]model.Candidate
}

// StaticEntry is one fixed candidate value for a field.
type StaticEntry struct {
	Field       string
	Value       string
	Reliability float64
}

// NewStatic builds a StaticProvider from fixed entries. SeenAt is
// stamped at call time by FetchCandidates, not here, so repeated
// lookups look like fresh observations.
func NewStatic(name string, entries []StaticEntry) *StaticProvider {
	byField := make(map[string][]model.Candidate)
	for _, e := range entries {
		byField[e.Field] = append(byField[e.Field], model.Candidate{
			Value:            e.Value,
			SourceType:       model.SourceAPI,
			ReliabilityScore: e.Reliability,
		})
	}
	for f := range byField {
		sort.SliceStable(byField[f], func(i, j int) bool {
			return byField[f][i].ReliabilityScore > byField[f][j].ReliabilityScore
		})
	}
	return &StaticProvider{name: name, byField: byField}
}

func (s *StaticProvider) Name() string { return s.name }

func (s *StaticProvider) Supports(field string) bool {
	_, ok := s.byField[field]
	return ok
}

func (s *StaticProvider) FetchCandidates(_ context.Context, _ *model.Provider, field string) ([]model.Candidate, error) {
	cands, ok := s.byField[field]
	if !ok {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]model.Candidate, len(cands))
	for i, c := range cands {
		c.SeenAt = now
		out[i] = c
	}
	return out, nil
}
