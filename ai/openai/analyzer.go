package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/tmc/langchaingo/llms"
)

// maxAnalysisText caps locally extracted text sent alongside a file.
const maxAnalysisText = 32000

// multimodalTypes are attached to the request as binary parts.
var multimodalTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
}

// Analyzer implements ai.Analyzer with a multimodal chat model.
type Analyzer struct {
	gen    *generator
	logger *slog.Logger
}

func newAnalyzer(gen *generator) *Analyzer {
	return &Analyzer{gen: gen, logger: slog.Default().With("component", "openai-analyzer")}
}

// Analyze sends the file (when the model can read it) plus any locally
// extracted text and tables, and returns the raw content map and elements.
// Elements of unknown type are dropped.
func (a *Analyzer) Analyze(ctx context.Context, req ai.AnalysisRequest) (*ai.Analysis, error) {
	if req.Collection == nil {
		return nil, errors.New("analysis request has no collection")
	}

	parts := []llms.ContentPart{llms.TextPart("Filename: " + req.Filename)}
	attached := false
	if len(req.Data) > 0 && multimodalTypes[req.ContentType] {
		parts = append(parts, llms.BinaryPart(req.ContentType, req.Data))
		attached = true
	}
	if text := strings.TrimSpace(req.Text); text != "" {
		if len(text) > maxAnalysisText {
			text = text[:maxAnalysisText]
		}
		parts = append(parts, llms.TextPart("Extracted text:\n"+text))
	}
	if len(req.Tables) > 0 {
		tables, err := json.Marshal(req.Tables)
		if err != nil {
			return nil, err
		}
		parts = append(parts, llms.TextPart("Tables found in the file:\n"+string(tables)))
	}
	if !attached && len(parts) == 1 {
		return nil, fmt.Errorf("nothing to analyze in %s (%s)", req.Filename, req.ContentType)
	}

	var result ai.Analysis
	messages := prompt(buildAnalysisPrompt(req.Collection), parts...)
	if err := a.gen.generate(ctx, messages, ai.CallHints{}, &result); err != nil {
		return nil, err
	}
	if result.Content == nil {
		result.Content = core.Content{}
	}

	kept := result.Elements[:0]
	for _, el := range result.Elements {
		if !el.Type.Valid() {
			a.logger.Warn("dropping element of unknown type", "filename", req.Filename, "type", el.Type)
			continue
		}
		kept = append(kept, el)
	}
	result.Elements = kept

	a.logger.Debug("analyzed file",
		"filename", req.Filename,
		"attached", attached,
		"fields", len(result.Content),
		"elements", len(result.Elements))
	return &result, nil
}
