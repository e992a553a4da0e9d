package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/lifecycle"
)

// embeddingProcessor generates document and element embeddings.
type embeddingProcessor struct {
	manager  *lifecycle.Manager
	embedder ai.Embedder
	model    string
	logger   *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

func newEmbeddingProcessor(manager *lifecycle.Manager, embedder ai.Embedder, model string, logger *slog.Logger) *embeddingProcessor {
	return &embeddingProcessor{
		manager:  manager,
		embedder: embedder,
		model:    model,
		logger:   logger.With("processor", "embeddings"),
	}
}

func (ep *embeddingProcessor) claims() core.DocumentStatus {
	return core.StatusMetadataReady
}

func (ep *embeddingProcessor) process(ctx context.Context, doc *core.Document) (*core.Document, error) {
	claimed, err := ep.manager.Advance(ctx, doc.ID, core.StatusMetadataReady, lifecycle.Transition{To: core.StatusEmbedding})
	if err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			return nil, errSkipped
		}
		return nil, err
	}

	updated, ready, failed, err := ep.embed(ctx, claimed)
	if err != nil {
		if errors.Is(err, core.ErrStatusConflict) {
			return nil, err
		}
		ep.logger.Error("embedding failed", "document", doc.ID, "err", err)
		if _, ferr := ep.manager.Fail(ctx, doc.ID, core.StatusEmbedding, err); ferr != nil {
			ep.logger.Error("error recording embedding failure", "document", doc.ID, "err", ferr)
		}
		return nil, err
	}
	ep.logger.Info("document embedded", "document", doc.ID, "elements_ready", ready, "elements_failed", failed)
	return updated, nil
}

// embed runs the stage for a claimed document. Any error it returns, other
// than a status conflict, fails the document.
func (ep *embeddingProcessor) embed(ctx context.Context, doc *core.Document) (updated *core.Document, ready, failed int, err error) {
	collection, err := ep.manager.Collection(ctx, doc.CollectionID)
	if err != nil {
		return nil, 0, 0, err
	}
	emb, err := ep.embedDocument(ctx, collection, doc)
	if err != nil {
		return nil, 0, 0, err
	}

	// Element failures are recorded on the element and do not fail the document.
	ready, failed, err = ep.embedElements(ctx, collection, doc, emb.Model)
	if err != nil {
		return nil, 0, 0, err
	}

	updated, err = ep.manager.Advance(ctx, doc.ID, core.StatusEmbedding, lifecycle.Transition{
		To:        core.StatusReady,
		Embedding: emb,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return updated, ready, failed, nil
}

func (ep *embeddingProcessor) embedDocument(ctx context.Context, collection *core.Collection, doc *core.Document) (*core.Embedding, error) {
	text := collection.EmbeddingText(doc)
	vector, err := ep.embedder.EmbedText(ctx, text, ai.TaskDocument)
	if err != nil {
		return nil, core.Upstream("embedder", err)
	}
	if err := checkDimensions(collection, vector); err != nil {
		return nil, err
	}
	model := ep.model
	if model == "" {
		model = collection.Embedding.Model
	}
	return &core.Embedding{
		Vector:    core.NormalizeVector(vector),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func checkDimensions(collection *core.Collection, vector []float32) error {
	if dims := collection.Embedding.Dimensions; dims > 0 && len(vector) != dims {
		return fmt.Errorf("%w: expected %d, received %d", ErrDimensionMismatch, dims, len(vector))
	}
	return nil
}

// embedElements embeds every pending element of doc and reports how many
// became ready and how many failed. Only a failure to load the elements is
// returned.
func (ep *embeddingProcessor) embedElements(ctx context.Context, collection *core.Collection, doc *core.Document, model string) (ready, failed int, err error) {
	els, err := ep.manager.Elements(ctx, doc.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading elements: %w", err)
	}
	var pending []*core.Element
	var texts []string
	for _, el := range els {
		if el.Status == core.ElementPending {
			pending = append(pending, el)
			texts = append(texts, el.EmbeddingText())
		}
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	vectors, err := ep.embedder.EmbedTexts(ctx, texts, ai.TaskDocument)
	if err == nil && len(vectors) != len(pending) {
		err = fmt.Errorf("embedding result mismatch: expected %d, received %d", len(pending), len(vectors))
	}
	now := time.Now().UTC()
	for i, el := range pending {
		var emb *core.Embedding
		cause := err
		if cause == nil {
			switch {
			case len(vectors[i]) == 0:
				cause = errors.New("empty embedding")
			default:
				cause = checkDimensions(collection, vectors[i])
			}
			if cause == nil {
				emb = &core.Embedding{Vector: core.NormalizeVector(vectors[i]), Model: model, CreatedAt: now}
			}
		}
		if cerr := ep.manager.CompleteElement(ctx, el, emb, cause); cerr != nil {
			ep.logger.Error("error recording element", "document", doc.ID, "element", el.ID, "err", cerr)
			failed++
			continue
		}
		if cause != nil {
			failed++
		} else {
			ready++
		}
	}
	return ready, failed, nil
}
