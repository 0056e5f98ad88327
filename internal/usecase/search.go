package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"symphonia/internal/domain"
	"symphonia/internal/port"
)

// SearchOptions bound a search use case at construction time.
type SearchOptions struct {
	// DefaultTopK is used by Retrieve. Zero means 5.
	DefaultTopK int
	// MaxTopK caps any requested top k. Zero means 10.
	MaxTopK int
	// Candidates is the reranking shortlist size. Zero means 50.
	Candidates int
	// PreviewChars caps result previews. Zero means 240.
	PreviewChars int
}

func (o *SearchOptions) fill() {
	if o.DefaultTopK < 1 {
		o.DefaultTopK = 5
	}
	if o.MaxTopK < 1 {
		o.MaxTopK = 10
	}
	if o.Candidates < 1 {
		o.Candidates = 50
	}
	if o.PreviewChars < 1 {
		o.PreviewChars = 240
	}
}

// SearchUseCase orchestrates query embedding, index search, and
// optional reranking. The published index can be swapped while
// searches are running; each search sees one consistent index.
type SearchUseCase struct {
	embedder port.Embedder
	reranker port.Reranker
	opts     SearchOptions

	mu    sync.RWMutex
	index port.Index
}

// NewSearchUseCase creates a search use case. reranker may be nil, in
// which case rerank requests fall back to index order.
func NewSearchUseCase(embedder port.Embedder, reranker port.Reranker, opts SearchOptions) *SearchUseCase {
	opts.fill()
	return &SearchUseCase{
		embedder: embedder,
		reranker: reranker,
		opts:     opts,
	}
}

// Publish swaps in a freshly built or loaded index. In-flight searches
// keep using the index they started with.
func (u *SearchUseCase) Publish(idx port.Index) {
	u.mu.Lock()
	u.index = idx
	u.mu.Unlock()
}

func (u *SearchUseCase) current() port.Index {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.index
}

// Ready reports whether an index has been published.
func (u *SearchUseCase) Ready() bool {
	return u.current() != nil
}

// Retrieve runs a search with the configured defaults, reranking when
// a reranker is available.
func (u *SearchUseCase) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return u.Search(ctx, query, u.opts.DefaultTopK, u.reranker != nil)
}

// Search embeds the query, takes the top candidates from the index,
// and returns topK results. topK is clamped to [1, MaxTopK]. With
// rerank off the results follow index order exactly, which makes the
// reranker's contribution measurable.
func (u *SearchUseCase) Search(ctx context.Context, query string, topK int, rerank bool) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if topK < 1 {
		topK = 1
	}
	if topK > u.opts.MaxTopK {
		topK = u.opts.MaxTopK
	}

	idx := u.current()
	if idx == nil {
		return nil, fmt.Errorf("%w: no index published", domain.ErrIndexUnavailable)
	}
	if got := idx.Meta().ModelName; got != u.embedder.ModelName() {
		return nil, fmt.Errorf("%w: index built with %q, embedder is %q",
			domain.ErrModelMismatch, got, u.embedder.ModelName())
	}

	vecs, err := u.embedder.Embed(ctx, []string{query}, port.RoleQuery)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	fetch := u.opts.Candidates
	if topK > fetch {
		fetch = topK
	}
	hits, err := idx.Search(vecs[0], fetch)
	if err != nil {
		return nil, err
	}

	if rerank && u.reranker != nil {
		candidates := make([]domain.Chunk, len(hits))
		for i, hit := range hits {
			chunk, ok := idx.Chunk(hit.ID)
			if !ok {
				return nil, fmt.Errorf("%w: hit %s has no chunk record", domain.ErrCorruptIndex, hit.ID)
			}
			candidates[i] = chunk
		}
		hits, err = u.reranker.Rerank(ctx, query, candidates, topK)
		if err != nil {
			return nil, fmt.Errorf("reranking failed: %w", err)
		}
	} else if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]domain.SearchResult, len(hits))
	for i, hit := range hits {
		chunk, ok := idx.Chunk(hit.ID)
		if !ok {
			return nil, fmt.Errorf("%w: hit %s has no chunk record", domain.ErrCorruptIndex, hit.ID)
		}
		results[i] = domain.SearchResult{
			ID:        chunk.ID,
			Score:     hit.Score,
			PageStart: chunk.PageStart,
			PageEnd:   chunk.PageEnd,
			StartChar: chunk.StartChar,
			EndChar:   chunk.EndChar,
			Preview:   makePreview(chunk.Text, u.opts.PreviewChars),
		}
	}
	return results, nil
}

// makePreview flattens whitespace and truncates to at most limit
// characters without splitting a word.
func makePreview(text string, limit int) string {
	words := strings.Fields(text)
	var b strings.Builder
	for _, word := range words {
		next := len(word)
		if b.Len() > 0 {
			next++
		}
		if b.Len()+next > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	return b.String()
}
