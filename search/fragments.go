package search

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/marginalia/core"
	"github.com/poiesic/marginalia/storage"
)

func (e *Engine) documentTask(qs *queryState, doc *core.Document, section string, threshold float64) *task {
	return &task{
		documentID: doc.ID,
		section:    section,
		threshold:  threshold,
		load: func(ctx context.Context) []core.ContentFragment {
			return e.documentFragments(ctx, doc, qs.embedding != nil)
		},
	}
}

func (e *Engine) fragmentTask(qs *queryState, frags []core.ContentFragment, section string, threshold float64) *task {
	return &task{
		section:   section,
		threshold: threshold,
		load: func(ctx context.Context) []core.ContentFragment {
			if qs.embedding != nil {
				if err := e.embedFragments(ctx, frags); err != nil {
					e.logger.Warn("embedding auxiliary fragments failed, scoring lexically", "count", len(frags), "err", err)
				}
			}
			return frags
		},
	}
}

// auxiliaryTasks builds tasks for annotations and memories. Records attached
// to the current document join the current section; the rest form a single
// task scored with the first chunk of other documents.
func (e *Engine) auxiliaryTasks(ctx context.Context, qs *queryState, currentThreshold, threshold float64) ([]*task, *task, error) {
	qc := qs.query.Context
	params := qs.query.Params

	var currentFrags, otherFrags []core.ContentFragment
	place := func(documentID core.ID, frags []core.ContentFragment) {
		switch {
		case qc.HasDocument() && documentID == qc.DocumentID:
			currentFrags = append(currentFrags, frags...)
		case !params.SingleDocument:
			otherFrags = append(otherFrags, frags...)
		}
	}

	if params.Includes(core.SourceAnnotation) {
		annotations, err := e.library.ListAnnotations(ctx, qc.UserID, 0)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range annotations {
			ref := core.SourceRef{Type: core.SourceAnnotation, ID: a.ID, DocumentID: a.DocumentID, Chapter: a.Chapter}
			place(a.DocumentID, e.splitter.SplitText(ref, a.Text()))
		}
	}

	if params.Includes(core.SourceMemory) {
		memories, err := e.library.ListMemories(ctx, qc.UserID)
		if err != nil {
			return nil, nil, err
		}
		for _, m := range memories {
			ref := core.SourceRef{Type: core.SourceMemory, ID: m.ID, DocumentID: m.DocumentID}
			place(m.DocumentID, e.splitter.SplitText(ref, m.Content))
		}
	}

	var current []*task
	if len(currentFrags) > 0 {
		current = append(current, e.fragmentTask(qs, currentFrags, core.SectionCurrent, currentThreshold))
	}
	var aux *task
	if len(otherFrags) > 0 {
		aux = e.fragmentTask(qs, otherFrags, core.SectionOther, threshold)
	}
	return current, aux, nil
}

// documentFragments returns a document's fragments, preferring stored ones
// whose version matches the document. Freshly split fragments are embedded
// in batches and written back when a fragment repository is configured.
func (e *Engine) documentFragments(ctx context.Context, doc *core.Document, embed bool) []core.ContentFragment {
	if e.fragments != nil {
		frags, version, err := e.fragments.GetFragments(ctx, doc.ID)
		switch {
		case err == nil && version.Equal(doc.UpdatedAt) && (!embed || embedded(frags)):
			return frags
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			e.logger.Warn("reading stored fragments failed", "document", doc.ID, "err", err)
		}
	}

	frags := e.splitter.SplitDocument(doc)
	if len(frags) == 0 || !embed {
		return frags
	}

	if err := e.embedFragments(ctx, frags); err != nil {
		e.logger.Warn("embedding document fragments failed, scoring lexically", "document", doc.ID, "err", err)
		return frags
	}
	if e.fragments != nil {
		if err := e.fragments.PutFragments(ctx, doc.ID, doc.UpdatedAt, frags); err != nil {
			e.logger.Warn("storing fragments failed", "document", doc.ID, "err", err)
		}
	}
	return frags
}

// embedFragments fills in embeddings in batches. On error, fragments
// embedded by earlier batches keep their vectors.
func (e *Engine) embedFragments(ctx context.Context, frags []core.ContentFragment) error {
	for batch := range slices.Chunk(frags, e.embedBatch) {
		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Text
		}
		vectors, err := e.embedBatchWithTimeout(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: got %d for %d fragments", ErrEmbeddingCount, len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}
	return nil
}

func embedded(frags []core.ContentFragment) bool {
	for _, f := range frags {
		if len(f.Embedding) == 0 {
			return false
		}
	}
	return true
}

func (e *Engine) embedBatchWithTimeout(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	return e.embedder.EmbedTexts(ctx, texts)
}
