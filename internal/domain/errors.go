package domain

import "errors"

// Error taxonomy for the retrieval pipeline. Callers match with
// errors.Is; adapters wrap these with fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidArgument rejects bad parameters (top_n < 1, overlap
	// fraction out of range) before any work is done.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidQuery rejects empty or whitespace-only queries.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrShapeMismatch aborts a build whose chunk and vector counts
	// disagree. No partial index is ever published.
	ErrShapeMismatch = errors.New("chunk/vector shape mismatch")

	// ErrCorruptIndex aborts a load whose on-disk artifacts are
	// inconsistent with each other or with the recorded metadata.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrModelMismatch is surfaced before any search when the index
	// was built with a different embedding model than the runtime one.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrIndexUnavailable is fatal to a single search call; callers
	// may retry after a build.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrDegenerateInput flags an embedding input that produced a zero
	// vector (empty or whitespace-only text) instead of silently
	// indexing an unnormalizable vector.
	ErrDegenerateInput = errors.New("degenerate embedding input")
)
