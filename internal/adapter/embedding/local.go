package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"symphonia/internal/domain"
	"symphonia/internal/port"
)

// LocalEmbedder talks to the OpenAI-compatible embeddings endpoint of a
// locally running model server. All retrieval models run locally; the
// only network hop is loopback.
type LocalEmbedder struct {
	model     string
	baseURL   string
	dimension int
	batchSize int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewLocalEmbedder creates an embedder against a local model server.
// Dimension defaults are derived from the model name when zero.
func NewLocalEmbedder(baseURL, model string, dimension, batchSize int) *LocalEmbedder {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434/v1"
	}
	if dimension <= 0 {
		dimension = defaultDimension(model)
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	return &LocalEmbedder{
		model:     model,
		baseURL:   baseURL,
		dimension: dimension,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func defaultDimension(model string) int {
	switch model {
	case "intfloat/e5-large-v2", "mxbai-embed-large":
		return 1024
	case "nomic-embed-text":
		return 768
	case "all-minilm":
		return 384
	}
	return 1024
}

// Embed encodes the texts with the asymmetric role prefix, batching
// requests and normalizing every vector to unit length. A blank input
// that embeds to the zero vector is reported, never indexed.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string, role port.Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = string(role) + ": " + text
	}

	var all [][]float32
	for i := 0; i < len(prefixed); i += e.batchSize {
		end := i + e.batchSize
		if end > len(prefixed) {
			end = len(prefixed)
		}
		batch, err := e.embedBatch(ctx, prefixed[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}

	for i, vec := range all {
		if len(vec) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch at input %d: expected %d, got %d", i, e.dimension, len(vec))
		}
		if !Normalize(vec) {
			return nil, fmt.Errorf("%w: input %d is empty or whitespace-only", domain.ErrDegenerateInput, i)
		}
	}
	return all, nil
}

func (e *LocalEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview, err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("embedding server error: %s", embResp.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, vec := range embeddings {
		if vec == nil {
			return nil, fmt.Errorf("embedding server omitted result for input %d", i)
		}
	}
	return embeddings, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) ModelName() string {
	return e.model
}

// Normalize scales v to unit Euclidean length in place. Returns false
// for the zero vector, which cannot be normalized.
func Normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return true
}
