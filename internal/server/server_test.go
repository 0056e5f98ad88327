package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"symphonia/internal/adapter/chunker"
	"symphonia/internal/adapter/embedding"
	"symphonia/internal/adapter/rerank"
	"symphonia/internal/domain"
	"symphonia/internal/usecase"
)

func newTestServer(t *testing.T, published bool) *httptest.Server {
	t.Helper()
	embedder := embedding.NewMockEmbedder(64)
	search := usecase.NewSearchUseCase(embedder, rerank.NewLexicalReranker(), usecase.SearchOptions{})

	if published {
		ck, err := chunker.NewParagraphChunker(200, 120, 0.15)
		if err != nil {
			t.Fatal(err)
		}
		pages := make([]domain.PageRecord, 8)
		for i := range pages {
			pages[i] = domain.PageRecord{
				Page: i + 1,
				Text: fmt.Sprintf("Section %d covers the archive shelves and their catalogue cards in detail.", i+1),
			}
		}
		build := usecase.NewBuildUseCase(ck, embedder, 16, nil)
		idx, _, err := build.Build(context.Background(), pages, filepath.Join(t.TempDir(), "index.db"), nil)
		if err != nil {
			t.Fatal(err)
		}
		search.Publish(idx)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer("127.0.0.1:0", search, 600, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postSearch(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/search", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return resp, payload
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status     string `json:"status"`
		IndexReady bool   `json:"index_ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("unexpected status %q", body.Status)
	}
	if body.IndexReady {
		t.Error("index must not report ready before publish")
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t, true)

	resp, payload := postSearch(t, ts, `{"query": "archive shelves", "top_k": 3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var results []domain.SearchResult
	if err := json.Unmarshal(payload["results"], &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if res.ID == "" || res.Preview == "" {
			t.Errorf("incomplete result %+v", res)
		}
	}
}

func TestSearchWithoutIndexReturns503(t *testing.T) {
	ts := newTestServer(t, false)

	resp, _ := postSearch(t, ts, `{"query": "anything"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestSearchBadRequests(t *testing.T) {
	ts := newTestServer(t, true)

	cases := map[string]string{
		"blank query":    `{"query": "   "}`,
		"overlong query": fmt.Sprintf(`{"query": %q}`, strings.Repeat("a", 601)),
		"malformed JSON": `{"query": `,
	}
	for name, body := range cases {
		resp, _ := postSearch(t, ts, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestSearchRerankToggle(t *testing.T) {
	ts := newTestServer(t, true)

	_, withPayload := postSearch(t, ts, `{"query": "catalogue cards", "top_k": 5, "rerank": true}`)
	_, withoutPayload := postSearch(t, ts, `{"query": "catalogue cards", "top_k": 5, "rerank": false}`)

	var with, without []domain.SearchResult
	if err := json.Unmarshal(withPayload["results"], &with); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(withoutPayload["results"], &without); err != nil {
		t.Fatal(err)
	}
	if len(with) != len(without) {
		t.Errorf("rerank toggle changed result count: %d vs %d", len(with), len(without))
	}
}

func TestCORSForLocalUI(t *testing.T) {
	ts := newTestServer(t, true)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/search", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/api/search", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("non-local origin must not be allowed")
	}
}
