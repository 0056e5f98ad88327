package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"symphonia/internal/adapter/cache"
	"symphonia/internal/adapter/store"
	"symphonia/internal/domain"
	"symphonia/internal/server"
	"symphonia/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Serve exposes /api/health and /api/search for the reading UI. When
no index has been built yet the server starts anyway and answers
searches with 503 until one is published.

Examples:
  symphonia serve
  symphonia serve --addr 0.0.0.0:8000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	reranker, err := newReranker()
	if err != nil {
		return err
	}

	searchUC := usecase.NewSearchUseCase(embedder, reranker, searchOptions())
	searcher := cache.NewCachedSearcher(searchUC, cache.NewQueryCache(200, 5*time.Minute))

	idx, err := store.Load(indexPath())
	switch {
	case err == nil:
		searcher.Publish(idx)
		slog.Info("index loaded", "path", indexPath(), "chunks", idx.Count(), "model", idx.Meta().ModelName)
	case errors.Is(err, domain.ErrIndexUnavailable):
		slog.Warn("no index published yet, searches will return 503", "path", indexPath())
	default:
		return fmt.Errorf("failed to load index: %w", err)
	}

	addr := cfg.Server.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.NewServer(addr, searcher, cfg.Server.MaxQueryChars, slog.Default())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
