package caseindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const contentMaxLen = 65535

// Milvus is the production VectorStore. Each subject maps to its own
// collection holding the chunk text alongside its embedding.
type Milvus struct {
	client *milvusclient.Client

	mu   sync.Mutex
	dims map[string]int // declared dimension per collection
}

// MilvusConfig carries connection settings for the Milvus cluster.
type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

func NewMilvus(ctx context.Context, cfg MilvusConfig) (*Milvus, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}
	return &Milvus{client: c, dims: make(map[string]int)}, nil
}

// Create drops any existing collection under name and builds a fresh one
// with an auto-id primary key, the embedding vector and the chunk text.
func (m *Milvus) Create(ctx context.Context, name string, dim int) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if exists {
		if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
			return fmt.Errorf("drop existing collection: %w", err)
		}
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription("per-subject transcript index").
		WithAutoID(true)
	schema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true),
	)
	schema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)),
	)
	schema.WithField(
		entity.NewField().
			WithName("content").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(contentMaxLen)),
	)

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.L2, 128)
	createIdxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for index creation: %w", err)
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for collection loading: %w", err)
	}

	m.mu.Lock()
	m.dims[name] = dim
	m.mu.Unlock()
	return nil
}

func (m *Milvus) Insert(ctx context.Context, name string, texts []string, vectors [][]float32) error {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) != len(vectors) {
		return fmt.Errorf("insert into %q: %d texts but %d vectors", name, len(texts), len(vectors))
	}

	m.mu.Lock()
	dim, known := m.dims[name]
	m.mu.Unlock()
	if known {
		for _, v := range vectors {
			if len(v) != dim {
				return &DimensionMismatchError{Collection: name, Want: dim, Got: len(v)}
			}
		}
	}

	columns := []column.Column{
		column.NewColumnFloatVector("embedding", len(vectors[0]), vectors),
		column.NewColumnVarChar("content", texts),
	}
	if _, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name, columns...)); err != nil {
		return fmt.Errorf("insert into %q: %w", name, err)
	}

	// Flush so the chunks are visible to the query that follows in the
	// same pipeline run.
	flushTask, err := m.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("flush %q: %w", name, err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("wait for flush: %w", err)
	}
	return nil
}

func (m *Milvus) Query(ctx context.Context, name string, vector []float32, k int) ([]Document, error) {
	if k <= 0 {
		return []Document{}, nil
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("wait for collection loading: %w", err)
	}

	searchVectors := []entity.Vector{entity.FloatVector(vector)}
	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(name, k, searchVectors).
		WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields("content"))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", name, err)
	}
	if len(results) == 0 {
		return []Document{}, nil
	}

	docs := make([]Document, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		doc := Document{Score: results[0].Scores[i]}
		for _, field := range results[0].Fields {
			if col, ok := field.(*column.ColumnVarChar); ok && col.Name() == "content" {
				doc.Content = col.Data()[i]
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *Milvus) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

var _ VectorStore = (*Milvus)(nil)
