// Package reembed precomputes fragment embeddings for library documents.
//
// A Reembedder walks every document in ID order, splits it into fragments,
// embeds them in batches with retry and exponential backoff, normalizes the
// vectors, and stores them stamped with the document's UpdatedAt. The search
// engine reuses stored fragments whose stamp still matches the document.
//
// Runs are resumable: after each batch a checkpoint records the last
// processed document ID, and the next run continues after it.
package reembed
