package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"symphonia/internal/adapter/store"
	"symphonia/internal/usecase"
)

var (
	queryText     string
	queryTopK     int
	queryJSON     bool
	queryNoRerank bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the manuscript index",
	Long: `Search for relevant passages with dense retrieval and cross-encoder
reranking.

Examples:
  symphonia query -q "What is Symphonic Prompting?"
  symphonia query -q "layered refrains" --top-k 10 --json
  symphonia query -q "layered refrains" --no-rerank`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryNoRerank, "no-rerank", false, "skip reranking, use index order")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	idx, err := store.Load(indexPath())
	if err != nil {
		return fmt.Errorf("no usable index (run 'symphonia build' first): %w", err)
	}

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	reranker, err := newReranker()
	if err != nil {
		return err
	}

	searchUC := usecase.NewSearchUseCase(embedder, reranker, searchOptions())
	searchUC.Publish(idx)

	topK := cfg.Search.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	results, err := searchUC.Search(cmd.Context(), queryText, topK, !queryNoRerank)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		pageRange := fmt.Sprintf("p.%d", r.PageStart)
		if r.PageEnd != r.PageStart {
			pageRange = fmt.Sprintf("p.%d-%d", r.PageStart, r.PageEnd)
		}
		fmt.Printf("--- [%d] %s %s (score: %.4f) ---\n", i+1, r.ID, pageRange, r.Score)
		fmt.Println(r.Preview)
		fmt.Println()
	}
	return nil
}
