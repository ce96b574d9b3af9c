package aiinvoker

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ridetrace/itinerary-coordinator/core"
	"github.com/ridetrace/itinerary-coordinator/internal/exporter"
	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

const systemPrompt = `You are a motorcycle route planning assistant. Given a rider's free-text ` +
	`ride note and their preferences, respond with exactly one JSON object describing a ` +
	`GeoJSON FeatureCollection route: LineString features per day/segment and optional ` +
	`Point features for points of interest. Respond with JSON only, no surrounding prose.`

// AnthropicInvoker calls the Anthropic Messages API, grounded on
// ai/providers/anthropic/client.go's request/response handling but
// built on the anthropic-sdk-go client instead of hand-rolled HTTP.
type AnthropicInvoker struct {
	client *anthropic.Client
	model  anthropic.Model
	logger core.Logger
}

// AnthropicConfig configures an AnthropicInvoker.
type AnthropicConfig struct {
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64
	Logger    core.Logger
}

// NewAnthropicInvoker builds an AnthropicInvoker from config.
func NewAnthropicInvoker(cfg AnthropicConfig) *AnthropicInvoker {
	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	// The SDK retries some failures by default; retry policy belongs to the
	// Coordinator, so the client is built with retries disabled.
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0))
	return &AnthropicInvoker{client: &client, model: model, logger: cfg.Logger}
}

// Invoke sends prompt as a single user turn and parses the resulting text
// as a GeoJSON Route Document.
func (a *AnthropicInvoker) Invoke(ctx context.Context, prompt string) (*routedoc.Document, *Failure) {
	maxTokens := int64(4096)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if text := block.Text; text != "" {
			content.WriteString(text)
		}
	}
	if content.Len() == 0 {
		return nil, &Failure{Kind: FailureInvalidOutput, Message: "model returned no text content"}
	}

	doc, err := exporter.ParseGeoJSON([]byte(content.String()))
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("AI response failed GeoJSON parse", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, &Failure{Kind: FailureInvalidOutput, Message: "model response was not a valid route document"}
	}
	if err := routedoc.Validate(doc); err != nil {
		return nil, &Failure{Kind: FailureInvalidOutput, Message: "model response failed route validation"}
	}
	return doc, nil
}

func classifyError(ctx context.Context, err error) *Failure {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Failure{Kind: FailureCancelled, Message: "generation cancelled"}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Message: "model call exceeded its deadline", RetryHint: true}
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return &Failure{Kind: FailureRateLimited, Message: "model provider is rate limiting requests", RetryHint: true}
		case 500, 502, 503, 529:
			return &Failure{Kind: FailureModelError, Message: "model provider returned a server error", RetryHint: true}
		default:
			return &Failure{Kind: FailureModelError, Message: "model provider rejected the request"}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Failure{Kind: FailureNetwork, Message: "network error reaching model provider", RetryHint: true}
	}

	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return &Failure{Kind: FailureInvalidOutput, Message: "model response was not valid JSON"}
	}

	return &Failure{Kind: FailureModelError, Message: "model call failed"}
}
