package domain

import "time"

// PageRecord is one page of the source manuscript, produced upstream by
// the PDF extraction step. Records arrive ordered by page number.
type PageRecord struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Chunk is a contiguous span of the normalized corpus with page
// provenance. Text is always a byte-exact slice of the corpus
// identified by [StartChar, EndChar).
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Hit is a (chunk id, score) pair produced by the index or the
// reranker, ordered descending by score.
type Hit struct {
	ID    string
	Score float64
}

// SearchResult is the citation-bearing record returned to callers.
type SearchResult struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	PageStart int     `json:"page_start"`
	PageEnd   int     `json:"page_end"`
	StartChar int     `json:"start_char"`
	EndChar   int     `json:"end_char"`
	Preview   string  `json:"preview"`
}

// IndexMeta describes a built index. ModelName must match the runtime
// embedder before any search is served against the index.
type IndexMeta struct {
	Dimension   int       `json:"dimension"`
	ModelName   string    `json:"model_name"`
	Count       int       `json:"count"`
	BuiltAt     time.Time `json:"built_at"`
	SourcePaths []string  `json:"source_paths,omitempty"`
}
