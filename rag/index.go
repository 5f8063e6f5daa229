package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"order-analyst/database"
	"order-analyst/llmclient"

	lru "github.com/hashicorp/golang-lru"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const collectionName = "column-documentation"

// Hit is one documented column matching a query.
type Hit struct {
	Column      string  `json:"column"`
	Description string  `json:"description"`
	DataType    string  `json:"data_type"`
	Score       float64 `json:"score"`
}

// Index is an in-memory vector index over the column documentation.
type Index struct {
	docs       *Documentation
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewIndex embeds every documented column. embed is typically
// (*CachedEmbedder).Embed.
func NewIndex(ctx context.Context, docs *Documentation, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create documentation collection: %w", err)
	}

	documents := make([]chromem.Document, 0, len(docs.Columns))
	for _, c := range docs.Columns {
		documents = append(documents, chromem.Document{
			ID:      c.Name,
			Content: c.Content(),
			Metadata: map[string]string{
				"name":        c.Name,
				"description": c.Description,
				"data_type":   c.DataType,
			},
		})
	}
	if len(documents) > 0 {
		if err := collection.AddDocuments(ctx, documents, 4); err != nil {
			return nil, fmt.Errorf("failed to embed documentation: %w", err)
		}
	}
	logger.Info("Documentation index built", zap.Int("columns", len(documents)))
	return &Index{docs: docs, collection: collection, logger: logger}, nil
}

func (i *Index) Documentation() *Documentation { return i.docs }

// Search returns up to k columns ranked by similarity to query.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if n := i.collection.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}
	results, err := i.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query documentation: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Column:      r.Metadata["name"],
			Description: r.Metadata["description"],
			DataType:    r.Metadata["data_type"],
			Score:       float64(r.Similarity),
		})
	}
	return hits, nil
}

// CachedEmbedder puts an in-memory LRU and an optional persistent cache in
// front of an embedding backend.
type CachedEmbedder struct {
	next   llmclient.Embedder
	mem    *lru.Cache
	store  database.EmbeddingCache
	model  string
	logger *zap.Logger
}

func NewCachedEmbedder(next llmclient.Embedder, store database.EmbeddingCache, size int, model string, logger *zap.Logger) (*CachedEmbedder, error) {
	mem, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, mem: mem, store: store, model: model, logger: logger}, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.mem.Get(key); ok {
		return v.([]float32), nil
	}
	if c.store != nil {
		vec, ok, err := c.store.GetEmbedding(ctx, key)
		if err != nil {
			c.logger.Warn("Embedding cache lookup failed", zap.Error(err))
		} else if ok {
			c.mem.Add(key, vec)
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mem.Add(key, vec)
	if c.store != nil {
		if err := c.store.PutEmbedding(ctx, key, vec); err != nil {
			c.logger.Warn("Failed to persist embedding", zap.Error(err))
		}
	}
	return vec, nil
}
