package port

import (
	"context"

	"symphonia/internal/domain"
)

// Reranker reorders a candidate shortlist by a pairwise relevance
// score that is more expensive per item than the embedding pass.
type Reranker interface {
	// Rerank returns min(keep, len(candidates)) hits, strictly
	// descending by score.
	Rerank(ctx context.Context, query string, candidates []domain.Chunk, keep int) ([]domain.Hit, error)

	// ModelName returns the name of the reranking model.
	ModelName() string
}
