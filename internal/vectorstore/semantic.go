package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BangRocket/mypalclara/internal/cortex"
	"github.com/BangRocket/mypalclara/internal/embedding"
)

// Semantic combines an embedding provider with the Qdrant client to satisfy
// the cortex's long-term store contract.
type Semantic struct {
	client     *Client
	embedder   embedding.Provider
	collection string
	logger     *zap.Logger
}

// NewSemantic ensures the collection exists and returns a ready store.
func NewSemantic(ctx context.Context, client *Client, embedder embedding.Provider, collection string, logger *zap.Logger) (*Semantic, error) {
	if collection == "" {
		collection = "memories"
	}
	dim := embedder.Dimension()
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: embedding dimension not configured")
	}
	if err := client.EnsureCollection(ctx, collection, uint64(dim)); err != nil {
		return nil, err
	}
	return &Semantic{
		client:     client,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}, nil
}

// Store embeds a record's content and upserts it under the record id.
func (s *Semantic) Store(ctx context.Context, rec *cortex.MemoryRecord) error {
	vectors, err := s.embedder.Embed(ctx, []string{rec.Content})
	if err != nil {
		return fmt.Errorf("embed memory %s: %w", rec.ID, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embed memory %s: empty result", rec.ID)
	}
	return s.client.Upsert(ctx, s.collection, rec.ID, vectors[0], Payload{
		UserID:     rec.UserID,
		Content:    rec.Content,
		Category:   rec.Category,
		Importance: rec.Importance,
	})
}

// Search embeds the query and returns the user's nearest memories. The
// projectID is folded into the query text when present, matching how project
// context was written.
func (s *Semantic) Search(ctx context.Context, userID, query string, limit int, projectID string) ([]cortex.SemanticHit, error) {
	if projectID != "" {
		query = projectID + " " + query
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	results, err := s.client.Search(ctx, s.collection, userID, vectors[0], uint64(limit))
	if err != nil {
		return nil, err
	}

	hits := make([]cortex.SemanticHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, cortex.SemanticHit{
			ID:         r.ID,
			Content:    r.Payload.Content,
			Category:   r.Payload.Category,
			Importance: r.Payload.Importance,
			Similarity: float64(r.Score),
		})
	}
	s.logger.Debug("semantic search",
		zap.String("user", userID),
		zap.Int("hits", len(hits)))
	return hits, nil
}
