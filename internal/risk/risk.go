// Package risk estimates how likely a provider's directory data is to
// drift, combining a model-scored assessment with hysteresis so stored
// figures only move on meaningful changes.
package risk

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/truthlens/provider-directory/internal/model"
)

const riskPrompt = `You estimate how likely a healthcare provider's directory data is
to change or go stale, based on behavioral features:
- number_of_past_changes
- days_since_last_change
- speciality
- region
- status

Output ONLY valid JSON of shape:
{ "risk_level": "low|medium|high", "risk_score": 0.0 }
risk_score is between 0 and 1.`

// Hysteresis: a new score only replaces the stored one when the band
// changes or the score moves by more than this much.
const scoreDeadband = 0.1

// JSONGenerator is the slice of the gateway the scorer needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, payload any, out any) error
}

// Scorer produces risk assessments for providers.
type Scorer struct {
	gw JSONGenerator
}

// New creates a Scorer on top of the given gateway.
func New(gw JSONGenerator) *Scorer {
	return &Scorer{gw: gw}
}

// ScoreProvider asks the model for a churn-risk estimate. Failures
// propagate; the caller decides whether to skip the provider or abort
// the batch.
func (s *Scorer) ScoreProvider(ctx context.Context, features model.RiskFeatures) (*model.RiskAssessment, error) {
	var out model.RiskAssessment
	if err := s.gw.GenerateJSON(ctx, riskPrompt, features, &out); err != nil {
		return nil, eris.Wrap(err, "risk: score provider")
	}
	if out.RiskScore < 0 || out.RiskScore > 1 {
		return nil, eris.Errorf("risk: score %v out of range", out.RiskScore)
	}
	switch out.RiskLevel {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
	default:
		return nil, eris.Errorf("risk: unknown level %q", out.RiskLevel)
	}

	// The model picks its own band, and sometimes it disagrees with the
	// score it emits. Keep what the model said but flag the mismatch.
	if banded := LevelForScore(out.RiskScore); banded != out.RiskLevel {
		zap.L().Warn("risk level inconsistent with score banding",
			zap.String("model_level", string(out.RiskLevel)),
			zap.String("banded_level", string(banded)),
			zap.Float64("score", out.RiskScore),
		)
	}
	return &out, nil
}

// LevelForScore maps a numeric score onto the canonical band.
func LevelForScore(score float64) model.RiskLevel {
	switch {
	case score < 0.34:
		return model.RiskLow
	case score < 0.67:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// ShouldUpdate reports whether a fresh assessment differs enough from
// the stored figures to be worth persisting.
func ShouldUpdate(oldLevel model.RiskLevel, oldScore float64, fresh *model.RiskAssessment) bool {
	if fresh.RiskLevel != oldLevel {
		return true
	}
	return math.Abs(fresh.RiskScore-oldScore) > scoreDeadband
}
