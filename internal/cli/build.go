package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"symphonia/internal/adapter/chunker"
	"symphonia/internal/adapter/pages"
	"symphonia/internal/usecase"
)

var buildPages []string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the search index from manuscript pages",
	Long: `Build chunks the configured page files, embeds every chunk, and
publishes the index atomically. A failed build leaves any previously
published index in place.

Examples:
  symphonia build                           # Use pages from config
  symphonia build -p "manuscript/*.jsonl"   # Override page sources`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringSliceVarP(&buildPages, "pages", "p", nil, "page file globs (default from config)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	patterns := cfg.Build.Pages
	if len(buildPages) > 0 {
		patterns = buildPages
	}

	paths, err := pages.Resolve(patterns)
	if err != nil {
		return err
	}
	records, err := pages.Load(paths)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d pages from %d files\n", len(records), len(paths))

	ck, err := chunker.NewParagraphChunker(cfg.Chunking.TargetChars, cfg.Chunking.MinChars, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}

	dbPath := indexPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	buildUC := usecase.NewBuildUseCase(ck, embedder, cfg.Embedding.BatchSize, progress)
	idx, result, err := buildUC.Build(cmd.Context(), records, dbPath, paths)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Printf("\nBuild complete:\n")
	fmt.Printf("  Pages:    %d\n", result.Pages)
	fmt.Printf("  Chunks:   %d\n", result.Chunks)
	fmt.Printf("  Model:    %s\n", idx.Meta().ModelName)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(10*time.Millisecond))
	fmt.Printf("\nIndex stored at: %s\n", dbPath)
	return nil
}
