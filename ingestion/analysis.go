package ingestion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/extract"
	"github.com/poiesic/corpora/lifecycle"
)

// analysisProcessor extracts content and elements from pending documents.
type analysisProcessor struct {
	manager  *lifecycle.Manager
	blobs    BlobSource
	analyzer ai.Analyzer
	logger   *slog.Logger
}

var _ processor = (*analysisProcessor)(nil)

func newAnalysisProcessor(manager *lifecycle.Manager, blobs BlobSource, analyzer ai.Analyzer, logger *slog.Logger) *analysisProcessor {
	return &analysisProcessor{
		manager:  manager,
		blobs:    blobs,
		analyzer: analyzer,
		logger:   logger.With("processor", "analysis"),
	}
}

func (ap *analysisProcessor) claims() core.DocumentStatus {
	return core.StatusPending
}

func (ap *analysisProcessor) process(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if _, err := ap.manager.Advance(ctx, doc.ID, core.StatusPending, lifecycle.Transition{To: core.StatusAnalyzing}); err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			return nil, errSkipped
		}
		return nil, err
	}

	t, err := ap.analyze(ctx, doc)
	if err != nil {
		ap.logger.Error("analysis failed", "document", doc.ID, "err", err)
		if _, ferr := ap.manager.Fail(ctx, doc.ID, core.StatusAnalyzing, err); ferr != nil {
			ap.logger.Error("error recording analysis failure", "document", doc.ID, "err", ferr)
		}
		return nil, err
	}

	updated, err := ap.manager.Advance(ctx, doc.ID, core.StatusAnalyzing, t)
	if err != nil {
		// Schema violations in the analyzer's output land here.
		if !errors.Is(err, core.ErrStatusConflict) {
			if _, ferr := ap.manager.Fail(ctx, doc.ID, core.StatusAnalyzing, err); ferr != nil {
				ap.logger.Error("error recording analysis failure", "document", doc.ID, "err", ferr)
			}
		}
		return nil, err
	}
	ap.logger.Info("document analyzed", "document", doc.ID, "elements", len(t.Elements))
	return updated, nil
}

func (ap *analysisProcessor) analyze(ctx context.Context, doc *core.Document) (lifecycle.Transition, error) {
	collection, err := ap.manager.Collection(ctx, doc.CollectionID)
	if err != nil {
		return lifecycle.Transition{}, err
	}
	data, err := ap.blobs.Get(ctx, doc.StorageURI)
	if err != nil {
		return lifecycle.Transition{}, core.Upstream("blob store", err)
	}
	local, err := extract.Extract(doc.File.Filename, data)
	if err != nil {
		return lifecycle.Transition{}, err
	}

	file := doc.File
	file.Size = int64(len(data))
	file.ContentType = local.ContentType
	if local.PageCount > 0 {
		file.PageCount = local.PageCount
	}

	req := ai.AnalysisRequest{
		Collection:  collection,
		Filename:    doc.File.Filename,
		ContentType: local.ContentType,
		Data:        data,
		Text:        local.Text,
	}
	for _, table := range local.Tables {
		req.Tables = append(req.Tables, ai.ExtractedElement{Type: core.ElementTable, Payload: table})
	}

	ap.logger.Debug("analyzing document", "document", doc.ID, "content_type", local.ContentType, "bytes", len(data))
	analysis, err := ap.analyzer.Analyze(ctx, req)
	if err != nil {
		return lifecycle.Transition{}, core.Upstream("analyzer", err)
	}
	if analysis == nil {
		return lifecycle.Transition{}, core.Upstream("analyzer", errors.New("empty analysis"))
	}

	content := analysis.Content
	if content == nil {
		content = core.Content{}
	}
	specs := make([]lifecycle.ElementSpec, 0, len(analysis.Elements))
	counts := map[string]any{}
	for _, el := range analysis.Elements {
		if !el.Type.Valid() {
			continue
		}
		specs = append(specs, lifecycle.ElementSpec{Type: el.Type, Payload: el.Payload})
		key := string(el.Type) + "s"
		n, _ := counts[key].(int)
		counts[key] = n + 1
	}
	if file.PageCount > 0 {
		counts["pages"] = file.PageCount
	}
	content[core.ContentCounts] = counts
	if title := local.Title; title != "" {
		if _, ok := content[core.ContentOutline]; !ok {
			content[core.ContentOutline] = []string{title}
		}
	}
	if len(specs) > 0 {
		ap.logger.Debug("elements found", "document", doc.ID, "counts", counts)
	}

	return lifecycle.Transition{
		To:       core.StatusMetadataReady,
		Content:  content,
		Elements: specs,
		File:     &file,
	}, nil
}
