package usecase

import (
	"context"
	"fmt"
	"time"

	"symphonia/internal/adapter/store"
	"symphonia/internal/domain"
	"symphonia/internal/port"
)

// BuildUseCase turns page records into a published index. Any failure
// aborts the whole build; a previously published index at the target
// path is never replaced by a partial one.
type BuildUseCase struct {
	chunker   port.Chunker
	embedder  port.Embedder
	batchSize int
	progress  func(done, total int)
}

// BuildResult summarizes a completed build.
type BuildResult struct {
	Pages    int
	Chunks   int
	Duration time.Duration
}

// NewBuildUseCase creates a build use case. progress may be nil; when
// set it is called after every embedded batch.
func NewBuildUseCase(chunker port.Chunker, embedder port.Embedder, batchSize int, progress func(done, total int)) *BuildUseCase {
	if batchSize < 1 {
		batchSize = 16
	}
	return &BuildUseCase{
		chunker:   chunker,
		embedder:  embedder,
		batchSize: batchSize,
		progress:  progress,
	}
}

// Build chunks the pages, embeds every chunk as a passage, and
// publishes the index at indexPath.
func (u *BuildUseCase) Build(ctx context.Context, pages []domain.PageRecord, indexPath string, sources []string) (*store.FlatIndex, *BuildResult, error) {
	start := time.Now()

	chunks, err := u.chunker.Chunk(pages)
	if err != nil {
		return nil, nil, fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: pages produced no chunks", domain.ErrInvalidArgument)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for off := 0; off < len(texts); off += u.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := off + u.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := u.embedder.Embed(ctx, texts[off:end], port.RolePassage)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding failed at chunk %d: %w", off, err)
		}
		vectors = append(vectors, batch...)
		if u.progress != nil {
			u.progress(end, len(texts))
		}
	}

	idx, err := store.Build(indexPath, chunks, vectors, u.embedder.ModelName(), sources)
	if err != nil {
		return nil, nil, err
	}

	return idx, &BuildResult{
		Pages:    len(pages),
		Chunks:   len(chunks),
		Duration: time.Since(start),
	}, nil
}
