package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"symphonia/internal/domain"
	"symphonia/internal/port"
)

// MockEmbedder is a deterministic hashed bag-of-words embedder for
// tests. Texts sharing words produce vectors with high inner product,
// which is enough to exercise the retrieval pipeline end to end.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(_ context.Context, texts []string, _ port.Role) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for _, token := range mockTokens(text) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[int(h.Sum32())%e.dimension]++
		}
		if !Normalize(vec) {
			return nil, fmt.Errorf("%w: input %d is empty or whitespace-only", domain.ErrDegenerateInput, i)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

func mockTokens(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
