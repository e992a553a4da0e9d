package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

var (
	// ErrNoChoices indicates the model returned an empty response.
	ErrNoChoices = errors.New("model returned no choices")

	// ErrMalformedResponse indicates the model output could not be decoded as
	// the expected JSON document.
	ErrMalformedResponse = errors.New("malformed model response")
)

// generator sends chat messages in JSON mode and decodes the reply,
// retrying when the model produces something that is not JSON.
type generator struct {
	client   llms.Model
	model    string
	limiter  *rate.Limiter
	attempts int
	logger   *slog.Logger
}

func newGenerator(client llms.Model, model string, limiter *rate.Limiter, attempts int, component string) *generator {
	if attempts < 1 {
		attempts = 1
	}
	return &generator{
		client:   client,
		model:    model,
		limiter:  limiter,
		attempts: attempts,
		logger:   slog.Default().With("component", component),
	}
}

// prompt builds a system message followed by one user message.
func prompt(system string, user ...llms.ContentPart) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: user,
		},
	}
}

func (g *generator) callOptions(hints ai.CallHints) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(0.0), llms.WithJSONMode()}
	model := g.model
	if hints.Model != "" {
		model = hints.Model
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	switch hints.ReasoningEffort {
	case "low", "medium", "high":
		opts = append(opts, llms.WithThinkingMode(llms.ThinkingMode(hints.ReasoningEffort)))
	}
	return opts
}

// generate runs the conversation and decodes the JSON reply into out.
// Transport errors are returned immediately; malformed replies are retried.
func (g *generator) generate(ctx context.Context, messages []llms.MessageContent, hints ai.CallHints, out any) error {
	opts := g.callOptions(hints)

	var lastErr error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		response, err := g.client.GenerateContent(ctx, messages, opts...)
		if err != nil {
			g.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return err
		}
		if len(response.Choices) < 1 {
			lastErr = ErrNoChoices
			g.logger.Warn("no choices returned from model", "attempt", attempt+1)
			continue
		}

		text := cleanJSON(response.Choices[0].Content)
		if !json.Valid([]byte(text)) {
			lastErr = fmt.Errorf("%w: not valid JSON", ErrMalformedResponse)
			g.logger.Warn("error parsing model response", "attempt", attempt+1, "response", text)
			continue
		}
		if err := json.Unmarshal([]byte(text), out); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
			g.logger.Warn("error decoding model response", "attempt", attempt+1, "response", text, "err", err)
			continue
		}
		return nil
	}

	g.logger.Error("failed to parse model response after retries", "attempts", g.attempts, "err", lastErr)
	return lastErr
}
