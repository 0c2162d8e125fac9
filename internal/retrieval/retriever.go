// Package retrieval defines the document-retrieval capability consumed by the
// response generator, and the background reindexing flow that keeps the
// underlying store in sync with externally edited documents.
package retrieval

import "context"

// Snippet is one ranked piece of retrieved context.
type Snippet struct {
	Content string
	Source  string
}

// Retriever returns ranked context snippets for a query. Implementations own
// ranking; callers own sanitization and prompt placement.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Snippet, error)
}

// Indexer ingests fetched document text into the retrieval store, replacing
// any previous content recorded under the same document id.
type Indexer interface {
	IndexDocument(ctx context.Context, documentID, text string) error
}
