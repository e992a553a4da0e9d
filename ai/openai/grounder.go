package openai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/tmc/langchaingo/llms"
)

// Grounder implements ai.Grounder with a JSON-mode chat model.
type Grounder struct {
	gen    *generator
	logger *slog.Logger
}

type groundingReply struct {
	Answer    string `json:"answer"`
	Citations []struct {
		SourceID      string `json:"sourceId"`
		RelevanceNote string `json:"relevanceNote"`
	} `json:"citations"`
	Confidence float64 `json:"confidence"`
}

func newGrounder(gen *generator) *Grounder {
	return &Grounder{gen: gen, logger: slog.Default().With("component", "openai-grounder")}
}

// Ground answers req.Query from req.Candidates. Citations carry only the
// cited source id and note; resolving them against the candidates is the
// caller's job.
func (g *Grounder) Ground(ctx context.Context, req ai.GroundingRequest) (*core.GroundedAnswer, error) {
	evidence, err := json.MarshalIndent(req.Candidates, "", "  ")
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildGroundingPrompt(string(evidence)))},
		},
	}
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == core.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Query))

	var reply groundingReply
	if err := g.gen.generate(ctx, messages, req.Hints, &reply); err != nil {
		return nil, err
	}

	answer := &core.GroundedAnswer{
		Answer:     reply.Answer,
		Citations:  make([]core.Citation, 0, len(reply.Citations)),
		Confidence: reply.Confidence,
	}
	for _, c := range reply.Citations {
		answer.Citations = append(answer.Citations, core.Citation{SourceID: c.SourceID, RelevanceNote: c.RelevanceNote})
	}
	g.logger.Debug("grounded answer", "candidates", len(req.Candidates), "citations", len(answer.Citations))
	return answer, nil
}
