package search

import "github.com/poiesic/marginalia/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query core.Query)
	AfterQueryEmbedding(err error)
	AfterConceptNarrowing(terms []string, candidates []core.ID, narrowed bool)
	AfterCurrentDocument(results []core.ScoredResult)
	AfterChunk(documents []core.ID, retained int)
	EarlyStop(retained, skipped int)
	Finish(results []core.ScoredResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Query)                                     {}
func (n *noopMonitor) AfterQueryEmbedding(_ error)                            {}
func (n *noopMonitor) AfterConceptNarrowing(_ []string, _ []core.ID, _ bool) {}
func (n *noopMonitor) AfterCurrentDocument(_ []core.ScoredResult)             {}
func (n *noopMonitor) AfterChunk(_ []core.ID, _ int)                          {}
func (n *noopMonitor) EarlyStop(_, _ int)                                     {}
func (n *noopMonitor) Finish(_ []core.ScoredResult)                           {}
