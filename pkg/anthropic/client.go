// Package anthropic adapts the official Anthropic SDK to the gateway's
// text-model contract, for deployments that point the pipeline at Claude
// instead of Gemini.
package anthropic

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/truthlens/provider-directory/internal/resilience"
)

const (
	defaultModel       = "claude-haiku-4-5-20251001"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
)

// ErrModelNotFound is returned when the configured model does not exist.
// Callers must treat it as fatal; it is never retried.
var ErrModelNotFound = eris.New("anthropic: model not found")

// Client generates text completions against the Anthropic API.
type Client interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		if model != "" {
			c.model = model
		}
	}
}

type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates an Anthropic client backed by the official SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   defaultMaxTokens,
		Temperature: sdk.Float(defaultTemperature),
		System:      []sdk.TextBlockParam{{Text: system}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	})
	if err != nil {
		return "", classifyErr(err, c.model)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", eris.New("anthropic: empty or unexpected response")
}

// classifyErr maps SDK API errors onto the gateway's retry taxonomy.
func classifyErr(err error, model string) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 404:
			return eris.Wrapf(ErrModelNotFound, "anthropic: model %q", model)
		case resilience.IsTransientHTTPStatus(apierr.StatusCode):
			return resilience.NewTransientError(
				eris.Wrap(err, "anthropic: create message"),
				apierr.StatusCode,
			)
		}
	}
	return eris.Wrap(err, "anthropic: create message")
}
