// Benchmark compares reranked search against plain index order on a
// built manuscript index and reports latency for both paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"symphonia/config"
	"symphonia/internal/adapter/embedding"
	"symphonia/internal/adapter/rerank"
	"symphonia/internal/adapter/store"
	"symphonia/internal/port"
	"symphonia/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "project directory holding the index")
	query := flag.String("q", "", "query to benchmark")
	topK := flag.Int("k", 5, "number of results")
	runs := flag.Int("runs", 5, "timed runs per path")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir . -q \"query\"")
		fmt.Println("\nCompares:")
		fmt.Println("  1. Dense retrieval only (index order)")
		fmt.Println("  2. Dense retrieval + reranking")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	dbPath := cfg.Build.IndexPath
	if dbPath == "" {
		dbPath = config.IndexDBPath(*dir)
	}
	idx, err := store.Load(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading index: %v\n", err)
		os.Exit(1)
	}

	var embedder port.Embedder
	if cfg.Embedding.Provider == "mock" {
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	} else {
		embedder = embedding.NewLocalEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
	}

	var reranker port.Reranker
	if cfg.Rerank.Provider == "lexical" {
		reranker = rerank.NewLexicalReranker()
	} else {
		reranker = rerank.NewCrossEncoder(cfg.Rerank.BaseURL, cfg.Rerank.Model)
	}

	searchUC := usecase.NewSearchUseCase(embedder, reranker, usecase.SearchOptions{
		DefaultTopK:  cfg.Search.TopK,
		MaxTopK:      cfg.Search.MaxTopK,
		Candidates:   cfg.Rerank.Candidates,
		PreviewChars: cfg.Search.PreviewChars,
	})
	searchUC.Publish(idx)

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Chunks indexed: %d\n", idx.Count())
	fmt.Printf("Embedding model: %s\n", idx.Meta().ModelName)
	fmt.Printf("Reranking model: %s\n", reranker.ModelName())
	fmt.Printf("Query: %q\n\n", *query)

	for _, mode := range []struct {
		name   string
		rerank bool
	}{
		{"index order", false},
		{"reranked", true},
	} {
		var total time.Duration
		var ids []string
		for i := 0; i < *runs; i++ {
			start := time.Now()
			res, err := searchUC.Search(context.Background(), *query, *topK, mode.rerank)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s search failed: %v\n", mode.name, err)
				os.Exit(1)
			}
			total += time.Since(start)
			if i == 0 {
				for _, r := range res {
					ids = append(ids, r.ID)
				}
			}
		}
		fmt.Printf("%-12s avg %8s over %d runs\n", mode.name, (total / time.Duration(*runs)).Round(time.Microsecond), *runs)
		fmt.Printf("%-12s top: %s\n\n", "", strings.Join(ids, ", "))
	}
}
