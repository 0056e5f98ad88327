package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"symphonia/internal/domain"
)

// CrossEncoder scores (query, passage) pairs with a locally served
// cross-encoder model. It is far more expensive per item than the
// embedding pass, so callers hand it a bounded shortlist only.
type CrossEncoder struct {
	model   string
	baseURL string
	client  *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewCrossEncoder creates a reranker against a local rerank server.
func NewCrossEncoder(baseURL, model string) *CrossEncoder {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8081"
	}
	if model == "" {
		model = "BAAI/bge-reranker-base"
	}
	return &CrossEncoder{
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Rerank scores every candidate against the query and returns the best
// min(keep, len(candidates)) hits, descending by relevance.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, candidates []domain.Chunk, keep int) ([]domain.Hit, error) {
	if keep < 1 {
		return nil, fmt.Errorf("%w: keep must be >= 1, got %d", domain.ErrInvalidArgument, keep)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	documents := make([]string, len(candidates))
	for i, chunk := range candidates {
		documents[i] = "passage: " + chunk.Text
	}

	reqBody := rerankRequest{
		Query:     "query: " + query,
		Documents: documents,
		Model:     r.model,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/rerank", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank server returned status %d: %s", resp.StatusCode, string(body))
	}

	var rerankResp rerankResponse
	if err := json.Unmarshal(body, &rerankResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := rerankResp.Results
	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Index < results[j].Index
	})

	if keep > len(results) {
		keep = len(results)
	}
	hits := make([]domain.Hit, 0, keep)
	for _, res := range results[:keep] {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank server returned out-of-range index %d", res.Index)
		}
		hits = append(hits, domain.Hit{ID: candidates[res.Index].ID, Score: res.RelevanceScore})
	}
	return hits, nil
}

// ModelName returns the reranking model name.
func (r *CrossEncoder) ModelName() string {
	return r.model
}
