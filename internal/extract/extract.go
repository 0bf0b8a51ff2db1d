// Package extract turns raw directory text into candidate provider
// records via the model gateway.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/gateway"
	"github.com/truthlens/provider-directory/internal/model"
)

const extractPrompt = `You are an information extraction engine for healthcare provider directories.
Given raw directory text, extract a list of providers.
For each provider, return:
- full_name
- speciality
- phone
- address
- license_id (if available)
- source_page (if you can infer from the text; else null)
- extraction_confidence (0 to 1)

Output ONLY valid JSON of shape:
{ "providers": [ ... ] }`

// JSONGenerator is the slice of the gateway the extractor needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, payload any, out any) error
}

// Extractor extracts structured provider records from document text.
type Extractor struct {
	gw JSONGenerator
}

// New creates an Extractor on top of the given gateway.
func New(gw JSONGenerator) *Extractor {
	return &Extractor{gw: gw}
}

type extractEnvelope struct {
	Providers []model.ExtractedProvider `json:"providers"`
}

// ExtractProviders returns the provider records the model found in text.
// Any failure (network, rate-limit exhaustion, unparseable reply)
// degrades to an empty list: extraction failure means "nothing found",
// not an error surfaced to the caller. The failure is logged at error
// level so operators can tell the two apart.
func (e *Extractor) ExtractProviders(ctx context.Context, text string) []model.ExtractedProvider {
	var env extractEnvelope
	if err := e.gw.GenerateJSON(ctx, extractPrompt, text, &env); err != nil {
		zap.L().Error("extraction failed, degrading to empty result",
			zap.Bool("parse_error", gateway.IsParseError(err)),
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
		return nil
	}
	return env.Providers
}
