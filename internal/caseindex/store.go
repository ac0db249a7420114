// Package caseindex holds the per-subject ephemeral vector index. An
// index is scratch state: it is dropped and rebuilt from the transcript
// on every pipeline run, never updated in place.
package caseindex

import (
	"context"
	"fmt"
)

// Document is one retrieval hit, ordered by the store's native
// descending-similarity ranking.
type Document struct {
	Content string
	Score   float32
}

// DimensionMismatchError reports an insert whose vector width does not
// match the dimension declared at Create time.
type DimensionMismatchError struct {
	Collection string
	Want       int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch in %q: want %d, got %d", e.Collection, e.Want, e.Got)
}

// VectorStore abstracts the similarity-search collaborator. Create drops
// any existing collection under the same name before recreating it, so a
// fresh namespace never serves stale documents.
type VectorStore interface {
	Create(ctx context.Context, name string, dim int) error
	Insert(ctx context.Context, name string, texts []string, vectors [][]float32) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]Document, error)
	Close(ctx context.Context) error
}

// CaseIndex binds a store to one subject's namespace.
type CaseIndex struct {
	store VectorStore
	name  string
	dim   int
}

func New(store VectorStore, subjectID string, dim int) *CaseIndex {
	return &CaseIndex{store: store, name: subjectID, dim: dim}
}

// Rebuild recreates the subject's collection and loads the given
// chunk/vector pairs into it.
func (ci *CaseIndex) Rebuild(ctx context.Context, texts []string, vectors [][]float32) error {
	if err := ci.store.Create(ctx, ci.name, ci.dim); err != nil {
		return fmt.Errorf("create index %q: %w", ci.name, err)
	}
	if len(texts) == 0 {
		return nil
	}
	if err := ci.store.Insert(ctx, ci.name, texts, vectors); err != nil {
		return fmt.Errorf("populate index %q: %w", ci.name, err)
	}
	return nil
}

// TopK returns up to k documents nearest the query vector. An empty
// index yields an empty result, not an error.
func (ci *CaseIndex) TopK(ctx context.Context, vector []float32, k int) ([]Document, error) {
	docs, err := ci.store.Query(ctx, ci.name, vector, k)
	if err != nil {
		return nil, fmt.Errorf("query index %q: %w", ci.name, err)
	}
	return docs, nil
}
