// internal/retrieval/retriever.go
package retrieval

import (
	"context"
)

// Document is one retrieved knowledge-base entry.
type Document struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// Retriever finds knowledge-base documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// NoOpRetriever satisfies Retriever when no document store is configured.
// Downstream context assembly treats an empty document list as "no
// relevant documents", so the answer still flows.
type NoOpRetriever struct{}

func NewNoOpRetriever() *NoOpRetriever {
	return &NoOpRetriever{}
}

func (r *NoOpRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return nil, nil
}
