package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/corpora/ai"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/storage"
)

// DefaultTimeout bounds one background processing job.
const DefaultTimeout = 10 * time.Minute

// Processor drives documents through analysis and embedding on worker pools.
type Processor struct {
	manager       *lifecycle.Manager
	analysisPool  *ants.Pool
	embeddingPool *ants.Pool
	analysisProc  processor
	embeddingProc processor
	timeout       time.Duration
	model         string
	jobs          sync.WaitGroup
	logger        *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor) error

// WithPoolSize sets the worker pool size of each stage.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Processor) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		p.releasePools()

		analysisPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			analysisPool.Release()
			return err
		}

		p.analysisPool = analysisPool
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithTimeout bounds each background job.
// Default is DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Processor) error {
		if timeout <= 0 {
			return errors.New("processing timeout must be positive")
		}
		p.timeout = timeout
		return nil
	}
}

// WithEmbeddingModel records the model name stored with each embedding.
// Default is the model declared by the document's collection.
func WithEmbeddingModel(model string) Option {
	return func(p *Processor) error {
		p.model = model
		return nil
	}
}

// NewProcessor creates a processor. blobs supplies file contents for analysis.
func NewProcessor(manager *lifecycle.Manager, blobs BlobSource, provider ai.AIProvider, opts ...Option) (*Processor, error) {
	if manager == nil {
		return nil, ErrManagerRequired
	}
	if blobs == nil {
		return nil, ErrBlobSourceRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Processor{
		manager: manager,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	poolSize := runtime.NumCPU() / 2
	if err := WithPoolSize(poolSize)(p); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	// Processors are built after options so they see the final config.
	p.analysisProc = newAnalysisProcessor(manager, blobs, provider.Analyzer(), p.logger)
	p.embeddingProc = newEmbeddingProcessor(manager, provider.Embedder(), p.model, p.logger)
	return p, nil
}

// Submit queues a document for processing from whatever stage it is in and
// returns without waiting. Documents that are already ready, failed or
// claimed by another worker are left alone.
func (p *Processor) Submit(id string) error {
	p.jobs.Add(1)
	err := p.analysisPool.Submit(func() {
		defer p.jobs.Done()
		if _, err := p.run(id); err != nil && !errors.Is(err, errSkipped) {
			p.logger.Error("error processing document", "document", id, "err", err)
		}
	})
	if err != nil {
		p.jobs.Done()
		return err
	}
	return nil
}

// Process runs a document through its remaining stages and returns it.
// The work runs on a background context, so ctx only bounds the wait.
func (p *Processor) Process(ctx context.Context, id string) (*core.Document, error) {
	type outcome struct {
		doc *core.Document
		err error
	}
	done := make(chan outcome, 1)
	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		doc, err := p.run(id)
		done <- outcome{doc, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if errors.Is(o.err, errSkipped) {
			return p.manager.Get(context.Background(), id)
		}
		return o.doc, o.err
	}
}

// run advances one document as far as it goes.
func (p *Processor) run(id string) (*core.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	doc, err := p.manager.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, proc := range []processor{p.analysisProc, p.embeddingProc} {
		if doc.Status != proc.claims() {
			continue
		}
		if doc, err = proc.process(ctx, doc); err != nil {
			return nil, err
		}
	}
	if !doc.Status.Terminal() && doc.Status != core.StatusPending && doc.Status != core.StatusMetadataReady {
		p.logger.Debug("document is being processed elsewhere", "document", id, "status", doc.Status)
		return doc, errSkipped
	}
	return doc, nil
}

// BatchReport tallies the outcome of a sweep.
type BatchReport struct {
	Attempted int                `json:"attempted"`
	Succeeded int                `json:"succeeded"`
	Skipped   int                `json:"skipped"`
	Failures  []core.ItemFailure `json:"failures,omitempty"`
}

// Err returns a *core.PartialFailure when any item failed.
func (r *BatchReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &core.PartialFailure{Attempted: r.Attempted, Failures: r.Failures}
}

// ProcessPending analyzes every pending document.
func (p *Processor) ProcessPending(ctx context.Context, collectionID string) (*BatchReport, error) {
	return p.sweep(ctx, collectionID, p.analysisPool, p.analysisProc)
}

// ProcessReadyForEmbedding embeds every document whose metadata is ready.
func (p *Processor) ProcessReadyForEmbedding(ctx context.Context, collectionID string) (*BatchReport, error) {
	return p.sweep(ctx, collectionID, p.embeddingPool, p.embeddingProc)
}

// ProcessAll runs both sweeps in stage order and merges their reports.
func (p *Processor) ProcessAll(ctx context.Context, collectionID string) (*BatchReport, error) {
	first, err := p.ProcessPending(ctx, collectionID)
	if first == nil {
		return nil, err
	}
	second, err := p.ProcessReadyForEmbedding(ctx, collectionID)
	if second == nil {
		return nil, err
	}
	merged := &BatchReport{
		Attempted: first.Attempted + second.Attempted,
		Succeeded: first.Succeeded + second.Succeeded,
		Skipped:   first.Skipped + second.Skipped,
		Failures:  append(first.Failures, second.Failures...),
	}
	return merged, merged.Err()
}

// sweep runs proc over every document in its claimed status. The listing
// uses ctx; the jobs themselves run on background contexts.
func (p *Processor) sweep(ctx context.Context, collectionID string, pool *ants.Pool, proc processor) (*BatchReport, error) {
	status := proc.claims()
	docs, err := p.listAll(ctx, status, collectionID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("processing documents", "status", status, "documents", len(docs))

	report := &BatchReport{Attempted: len(docs)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	record := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, errSkipped):
			report.Skipped++
		default:
			report.Failures = append(report.Failures, core.NewItemFailure(id, string(status), err))
		}
	}

	for _, doc := range docs {
		wg.Add(1)
		p.jobs.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer p.jobs.Done()
			jobCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
			defer cancel()
			_, err := proc.process(jobCtx, doc)
			record(doc.ID, err)
		})
		if err != nil {
			wg.Done()
			p.jobs.Done()
			record(doc.ID, err)
		}
	}
	wg.Wait()

	p.logger.Info("processing complete", "status", status,
		"succeeded", report.Succeeded, "skipped", report.Skipped, "failed", len(report.Failures))
	return report, report.Err()
}

func (p *Processor) listAll(ctx context.Context, status core.DocumentStatus, collectionID string) ([]*core.Document, error) {
	const page = 100
	var all []*core.Document
	for offset := 0; ; offset += page {
		docs, err := p.manager.ListByStatus(ctx, status, storage.ListOptions{
			CollectionID: collectionID,
			Offset:       offset,
			Limit:        page,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)
		if len(docs) < page {
			return all, nil
		}
	}
}

// Wait blocks until every submitted job has finished.
func (p *Processor) Wait() {
	p.jobs.Wait()
}

// Release waits for running jobs and releases the worker pools.
// The processor should not be used after calling Release.
func (p *Processor) Release() {
	p.jobs.Wait()
	p.releasePools()
}

func (p *Processor) releasePools() {
	if p.analysisPool != nil {
		p.analysisPool.Release()
	}
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
