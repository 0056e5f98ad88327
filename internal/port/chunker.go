package port

import "symphonia/internal/domain"

// Chunker turns page-tagged manuscript text into overlapping chunks
// with stable IDs and page spans.
type Chunker interface {
	Chunk(pages []domain.PageRecord) ([]domain.Chunk, error)
}
