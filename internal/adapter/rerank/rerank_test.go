package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"symphonia/internal/domain"
)

func candidateChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "sym-000000", Text: "Database connection pooling and retry strategy."},
		{ID: "sym-000001", Text: "Symphonic Prompting blends structured retrieval with expressive composition."},
		{ID: "sym-000002", Text: "Notes on orchestration and prompting technique."},
	}
}

func TestLexicalRerankerOrdersByOverlap(t *testing.T) {
	r := NewLexicalReranker()
	hits, err := r.Rerank(context.Background(), "What is Symphonic Prompting?", candidateChunks(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "sym-000001" {
		t.Errorf("expected the overlapping chunk first, got %s", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Error("hits are not sorted descending")
		}
	}
}

func TestLexicalRerankerKeepBound(t *testing.T) {
	r := NewLexicalReranker()

	hits, err := r.Rerank(context.Background(), "prompting", candidateChunks(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected exactly 1 hit, got %d", len(hits))
	}

	hits, err = r.Rerank(context.Background(), "prompting", candidateChunks(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Errorf("expected keep to clamp to candidate count, got %d hits", len(hits))
	}
}

func TestLexicalRerankerTiesKeepCandidateOrder(t *testing.T) {
	r := NewLexicalReranker()
	candidates := []domain.Chunk{
		{ID: "sym-000000", Text: "nothing in common here"},
		{ID: "sym-000001", Text: "also nothing shared"},
	}
	hits, err := r.Rerank(context.Background(), "melody", candidates, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != "sym-000000" || hits[1].ID != "sym-000001" {
		t.Errorf("tied scores must preserve candidate order, got %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestLexicalRerankerValidation(t *testing.T) {
	r := NewLexicalReranker()
	if _, err := r.Rerank(context.Background(), "q", candidateChunks(), 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for keep 0, got %v", err)
	}
	hits, err := r.Rerank(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for no candidates, got %d", len(hits))
	}
}

func TestCrossEncoderSendsPrefixedPairsAndOrdersHits(t *testing.T) {
	var got rerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(rerankResponse{
			Results: []rerankResult{
				{Index: 0, RelevanceScore: 0.1},
				{Index: 1, RelevanceScore: 0.9},
				{Index: 2, RelevanceScore: 0.5},
			},
		})
	}))
	defer srv.Close()

	r := NewCrossEncoder(srv.URL, "BAAI/bge-reranker-base")
	hits, err := r.Rerank(context.Background(), "What is Symphonic Prompting?", candidateChunks(), 2)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(got.Query, "query: ") {
		t.Errorf("query %q missing role prefix", got.Query)
	}
	if len(got.Documents) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(got.Documents))
	}
	for _, doc := range got.Documents {
		if !strings.HasPrefix(doc, "passage: ") {
			t.Errorf("document %q missing role prefix", doc)
		}
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "sym-000001" || hits[1].ID != "sym-000002" {
		t.Errorf("unexpected hit order %s, %s", hits[0].ID, hits[1].ID)
	}
	if hits[0].Score != 0.9 || hits[1].Score != 0.5 {
		t.Errorf("unexpected scores %g, %g", hits[0].Score, hits[1].Score)
	}
}

func TestCrossEncoderServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewCrossEncoder(srv.URL, "")
	if _, err := r.Rerank(context.Background(), "q", candidateChunks(), 2); err == nil {
		t.Error("expected an error when the rerank server fails")
	}
}
