package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"symphonia/config"
	"symphonia/internal/adapter/embedding"
	"symphonia/internal/adapter/rerank"
	"symphonia/internal/port"
	"symphonia/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "symphonia",
	Short: "Manuscript retrieval - build and search a page-cited index",
	Long: `Symphonia indexes a manuscript's pages into overlapping chunks with
dense embeddings, then answers questions with page-cited passages.

Example usage:
  symphonia build                            # Build the index from configured pages
  symphonia query -q "What is a refrain?"    # Search the index
  symphonia serve                            # Serve the search API`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		setupLogging(cfg.Logging.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./symphonia.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func indexPath() string {
	if cfg.Build.IndexPath != "" {
		return cfg.Build.IndexPath
	}
	return config.IndexDBPath(rootDir)
}

func newEmbedder() (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "local", "":
		return embedding.NewLocalEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension, cfg.Embedding.BatchSize), nil
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func newReranker() (port.Reranker, error) {
	if !cfg.Rerank.Enabled {
		return nil, nil
	}
	switch cfg.Rerank.Provider {
	case "local", "":
		return rerank.NewCrossEncoder(cfg.Rerank.BaseURL, cfg.Rerank.Model), nil
	case "lexical":
		return rerank.NewLexicalReranker(), nil
	default:
		return nil, fmt.Errorf("unsupported rerank provider: %s", cfg.Rerank.Provider)
	}
}

func searchOptions() usecase.SearchOptions {
	return usecase.SearchOptions{
		DefaultTopK:  cfg.Search.TopK,
		MaxTopK:      cfg.Search.MaxTopK,
		Candidates:   cfg.Rerank.Candidates,
		PreviewChars: cfg.Search.PreviewChars,
	}
}
