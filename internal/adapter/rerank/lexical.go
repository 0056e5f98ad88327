package rerank

import (
	"context"
	"fmt"
	"sort"

	"symphonia/internal/domain"
)

// LexicalReranker scores candidates by query term overlap. It needs no
// model server, which makes it the deterministic stand-in for tests
// and for installs without a cross-encoder.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, candidates []domain.Chunk, keep int) ([]domain.Hit, error) {
	if keep < 1 {
		return nil, fmt.Errorf("%w: keep must be >= 1, got %d", domain.ErrInvalidArgument, keep)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryTerms := termSet(query)
	hits := make([]domain.Hit, len(candidates))
	order := make([]int, len(candidates))
	for i, chunk := range candidates {
		hits[i] = domain.Hit{ID: chunk.ID, Score: termOverlap(queryTerms, chunk.Text)}
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return i < j
	})

	if keep > len(order) {
		keep = len(order)
	}
	out := make([]domain.Hit, keep)
	for i := 0; i < keep; i++ {
		out[i] = hits[order[i]]
	}
	return out, nil
}

func (r *LexicalReranker) ModelName() string {
	return "lexical-overlap"
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	word := ""
	flush := func() {
		if len(word) >= 2 {
			terms[word] = struct{}{}
		}
		word = ""
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			word += string(r)
		case r >= 'A' && r <= 'Z':
			word += string(r - 'A' + 'a')
		default:
			flush()
		}
	}
	flush()
	return terms
}

func termOverlap(queryTerms map[string]struct{}, doc string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := termSet(doc)
	matches := 0
	for term := range queryTerms {
		if _, ok := docTerms[term]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTerms))
}
