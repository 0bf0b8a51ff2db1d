// Package resolve arbitrates between conflicting field values observed
// across sources, using the model gateway as the judge.
package resolve

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/truthlens/provider-directory/internal/model"
)

const resolvePrompt = `You are TRUTHLENS, an adjudication engine for healthcare provider data.
You are given a provider field and a list of candidate values observed
across sources. Each candidate carries its source type, a reliability
score (0 to 1), and when it was seen.

Pick the value most likely to be correct today. Prefer more reliable
sources and more recent observations, but use judgement: a stale value
from a highly reliable source may still beat a fresh value from a weak
one.

Output ONLY valid JSON of shape:
{ "final_value": "...", "confidence": 0.0, "reason": "..." }`

// JSONGenerator is the slice of the gateway the resolver needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, payload any, out any) error
}

// Resolver adjudicates conflicting field candidates.
type Resolver struct {
	gw JSONGenerator
}

// New creates a Resolver on top of the given gateway.
func New(gw JSONGenerator) *Resolver {
	return &Resolver{gw: gw}
}

type resolveRequest struct {
	ProviderName string            `json:"provider_name"`
	Field        string            `json:"field"`
	Candidates   []model.Candidate `json:"candidates"`
}

// ResolveField asks the model to pick the winning value for one field.
// Unlike extraction, failures here propagate: a validation endpoint
// should report that it could not adjudicate rather than silently keep
// the old value.
func (r *Resolver) ResolveField(ctx context.Context, providerName, field string, candidates []model.Candidate) (*model.Resolution, error) {
	if len(candidates) < 2 {
		return nil, eris.Errorf("resolve: field %q needs at least two candidates, got %d", field, len(candidates))
	}

	var res model.Resolution
	req := resolveRequest{ProviderName: providerName, Field: field, Candidates: candidates}
	if err := r.gw.GenerateJSON(ctx, resolvePrompt, req, &res); err != nil {
		return nil, eris.Wrapf(err, "resolve: adjudicate %s for %s", field, providerName)
	}
	if res.FinalValue == "" {
		return nil, eris.Errorf("resolve: model returned empty final_value for field %q", field)
	}
	return &res, nil
}
