package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
	"symphonia/internal/domain"
)

func testChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:        fmt.Sprintf("sym-%06d", i),
			Text:      fmt.Sprintf("Chunk number %d text.", i),
			PageStart: i + 1,
			PageEnd:   i + 1,
			StartChar: i * 100,
			EndChar:   i*100 + 20,
		}
	}
	return chunks
}

func testVectors(n, dim int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		vectors[i] = vec
	}
	return vectors
}

func TestBuildLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	chunks := testChunks(5)
	vectors := testVectors(5, 4)

	built, err := Build(path, chunks, vectors, "intfloat/e5-large-v2", []string{"pages.jsonl"})
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Count() != built.Count() {
		t.Fatalf("count changed across round trip: %d vs %d", loaded.Count(), built.Count())
	}
	if loaded.Meta().ModelName != "intfloat/e5-large-v2" {
		t.Errorf("unexpected model name %q", loaded.Meta().ModelName)
	}
	if loaded.Meta().Dimension != 4 {
		t.Errorf("unexpected dimension %d", loaded.Meta().Dimension)
	}

	for i := range built.ids {
		if built.ids[i] != loaded.ids[i] {
			t.Fatalf("id order changed at position %d: %s vs %s", i, built.ids[i], loaded.ids[i])
		}
		for j := range built.vectors[i] {
			if built.vectors[i][j] != loaded.vectors[i][j] {
				t.Fatalf("vector %d differs at component %d", i, j)
			}
		}
	}

	for _, chunk := range chunks {
		got, ok := loaded.Chunk(chunk.ID)
		if !ok {
			t.Fatalf("chunk %s missing after load", chunk.ID)
		}
		if got != chunk {
			t.Errorf("chunk %s changed across round trip", chunk.ID)
		}
	}
}

func TestBuildShapeMismatchLeavesExistingIndexUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	if _, err := Build(path, testChunks(3), testVectors(3, 4), "model-a", nil); err != nil {
		t.Fatal(err)
	}

	_, err := Build(path, testChunks(10), testVectors(9, 4), "model-b", nil)
	if !errors.Is(err, domain.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("previous index no longer loads: %v", err)
	}
	if loaded.Count() != 3 || loaded.Meta().ModelName != "model-a" {
		t.Error("previous index was modified by the failed build")
	}
}

func TestBuildRejectsRaggedVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	vectors := testVectors(3, 4)
	vectors[2] = []float32{1, 0}

	if _, err := Build(path, testChunks(3), vectors, "m", nil); !errors.Is(err, domain.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch for ragged vectors, got %v", err)
	}
}

func TestLoadMissingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	if _, err := Load(path); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestLoadDetectsCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	if _, err := Build(path, testChunks(4), testVectors(4, 4), "m", nil); err != nil {
		t.Fatal(err)
	}

	// Remove one id record so the counts disagree.
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIDs).Delete(positionKey(2))
	})
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := Load(path); !errors.Is(err, domain.ErrCorruptIndex) {
		t.Errorf("expected ErrCorruptIndex, got %v", err)
	}
}

func TestSearchOrderingAndStableTies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	chunks := testChunks(4)
	// Two identical vectors force a score tie; insertion order must win.
	vectors := [][]float32{
		{0, 1, 0},
		{1, 0, 0},
		{1, 0, 0},
		{0.5, 0.5, 0},
	}
	idx, err := Build(path, chunks, vectors, "m", nil)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search([]float32{1, 0, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(hits))
	}

	wantOrder := []string{"sym-000001", "sym-000002", "sym-000003", "sym-000000"}
	for i, want := range wantOrder {
		if hits[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, hits[i].ID)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Error("hits are not sorted descending")
		}
	}
}

func TestSearchArgumentValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Build(path, testChunks(2), testVectors(2, 3), "m", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Search([]float32{1, 0, 0}, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for top_n 0, got %v", err)
	}
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for dimension mismatch, got %v", err)
	}

	hits, err := idx.Search([]float32{1, 0, 0}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("expected top_n to clamp to index size, got %d hits", len(hits))
	}
}
