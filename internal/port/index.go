package port

import "symphonia/internal/domain"

// Index is a loaded, immutable similarity index. Implementations are
// read-only after load and safe for concurrent searchers without
// locking.
type Index interface {
	// Search returns up to topN hits by exact inner product, descending
	// by score, ties broken by original insertion order.
	Search(query []float32, topN int) ([]domain.Hit, error)

	// Chunk resolves a chunk id back to its record for citations.
	Chunk(id string) (domain.Chunk, bool)

	// Meta returns the metadata recorded at build time.
	Meta() domain.IndexMeta

	// Count returns the number of indexed vectors.
	Count() int
}
