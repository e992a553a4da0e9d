package search

import (
	"log/slog"

	"github.com/poiesic/corpora/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Hooks may be called concurrently when several collections are searched.
type SearchMonitor interface {
	Start(collectionID, query string)
	AfterExactPass(collectionID string, documents, elements int)
	AfterSemanticPass(collectionID string, documents, elements int)
	StaleElementsDropped(collectionID string, count int)
	Finish(collectionID string, results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                       {}
func (n *noopMonitor) AfterExactPass(_ string, _, _ int)       {}
func (n *noopMonitor) AfterSemanticPass(_ string, _, _ int)    {}
func (n *noopMonitor) StaleElementsDropped(_ string, _ int)    {}
func (n *noopMonitor) Finish(_ string, _ []*core.SearchResult) {}

// LogMonitor reports each stage at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(collectionID, query string) {
	m.logger().Debug("search started", "collection", collectionID, "query", query)
}

func (m *LogMonitor) AfterExactPass(collectionID string, documents, elements int) {
	m.logger().Debug("exact pass", "collection", collectionID, "documents", documents, "elements", elements)
}

func (m *LogMonitor) AfterSemanticPass(collectionID string, documents, elements int) {
	m.logger().Debug("semantic pass", "collection", collectionID, "documents", documents, "elements", elements)
}

func (m *LogMonitor) StaleElementsDropped(collectionID string, count int) {
	m.logger().Debug("stale elements dropped", "collection", collectionID, "elements", count)
}

func (m *LogMonitor) Finish(collectionID string, results []*core.SearchResult) {
	m.logger().Debug("search finished", "collection", collectionID, "results", len(results))
}
