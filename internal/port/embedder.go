package port

import "context"

// Role selects the encoding side for asymmetric embedding models.
// Passing the wrong role degrades retrieval quality silently; this is
// a caller contract the embedder cannot verify.
type Role string

const (
	RolePassage Role = "passage"
	RoleQuery   Role = "query"
)

// Embedder maps texts to fixed-length unit-norm float32 vectors,
// one output per input, order-preserving.
type Embedder interface {
	// Embed encodes the given texts for the given role. An input that
	// yields a zero vector is reported via domain.ErrDegenerateInput
	// rather than normalized or silently returned.
	Embed(ctx context.Context, texts []string, role Role) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
