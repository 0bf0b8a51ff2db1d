// Package gateway wraps a hosted text model with the orchestration
// contract the pipeline relies on: JSON payload marshalling, outbound
// rate limiting, bounded retries on transient failures, and typed
// parsing of the model's free-form output.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/truthlens/provider-directory/internal/resilience"
)

// TextModel is the minimal surface a hosted model backend must provide.
// pkg/gemini and pkg/anthropic both implement it.
type TextModel interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// Config tunes the gateway's call discipline.
type Config struct {
	// MaxAttempts is the total number of attempts per call, including the
	// first. Default: 3.
	MaxAttempts int
	// RetryBaseDelay is the linear backoff base: retry n waits n × base.
	// Default: 2s.
	RetryBaseDelay time.Duration
	// RequestsPerSec throttles outbound model calls. <= 0 disables the
	// limiter.
	RequestsPerSec float64
}

// Gateway sends prompts to a TextModel and parses JSON out of its
// replies. It holds no state beyond the limiter; the same instance is
// shared by extraction, resolution, and risk scoring.
type Gateway struct {
	model   TextModel
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// New creates a Gateway around the given model backend.
func New(model TextModel, cfg Config) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Gateway{
		model: model,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.RetryBaseDelay,
			Backoff:        resilience.BackoffLinear,
			OnRetry:        resilience.RetryLogger("model", "generate"),
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GenerateText sends the system prompt plus payload and returns the raw
// model text. Non-string payloads are marshalled to JSON. Transient
// failures (rate limits, 5xx, network) are retried with linear backoff;
// a model-not-found error from the backend is fatal on the first
// attempt.
func (g *Gateway) GenerateText(ctx context.Context, system string, payload any) (string, error) {
	user, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "gateway: rate limiter")
		}
		return g.model.GenerateText(ctx, system, user)
	})
}

// GenerateJSON calls GenerateText and decodes the reply into out after
// stripping Markdown code fences. A reply that is not valid JSON yields
// a *ParseError carrying the raw text; parse failures are never retried.
func (g *Gateway) GenerateJSON(ctx context.Context, system string, payload any, out any) error {
	raw, err := g.GenerateText(ctx, system, payload)
	if err != nil {
		return err
	}

	cleaned := CleanJSON(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

func encodePayload(payload any) (string, error) {
	switch p := payload.(type) {
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return "", eris.Wrap(err, "gateway: marshal payload")
		}
		return string(b), nil
	}
}
