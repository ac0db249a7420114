package caseindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process VectorStore with exact cosine ranking. It
// backs tests and the VECTOR_STORE=memory demo mode; production runs use
// Milvus.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dim     int
	texts   []string
	vectors [][]float32
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) Create(_ context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Replacing the entry drops whatever a prior run inserted.
	m.collections[name] = &memoryCollection{dim: dim}
	return nil
}

func (m *Memory) Insert(_ context.Context, name string, texts []string, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("collection %q not created", name)
	}
	for _, v := range vectors {
		if len(v) != coll.dim {
			return &DimensionMismatchError{Collection: name, Want: coll.dim, Got: len(v)}
		}
	}
	coll.texts = append(coll.texts, texts...)
	coll.vectors = append(coll.vectors, vectors...)
	return nil
}

func (m *Memory) Query(_ context.Context, name string, vector []float32, k int) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[name]
	if !ok || len(coll.texts) == 0 {
		return []Document{}, nil
	}
	docs := make([]Document, len(coll.texts))
	for i := range coll.texts {
		docs[i] = Document{
			Content: coll.texts[i],
			Score:   float32(cosineSimilarity(vector, coll.vectors[i])),
		}
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if k > len(docs) {
		k = len(docs)
	}
	if k < 0 {
		k = 0
	}
	return docs[:k], nil
}

func (m *Memory) Close(context.Context) error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorStore = (*Memory)(nil)
