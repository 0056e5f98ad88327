package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"symphonia/internal/domain"
)

// Searcher is what the server needs from the search layer. Both the
// plain use case and its cached wrapper satisfy it.
type Searcher interface {
	Ready() bool
	Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error)
	Search(ctx context.Context, query string, topK int, rerank bool) ([]domain.SearchResult, error)
}

// Server exposes the search use case over HTTP for the reading UI.
type Server struct {
	search        Searcher
	maxQueryChars int
	logger        *slog.Logger
	httpServer    *http.Server
}

// NewServer creates a server bound to addr. maxQueryChars < 1 defaults
// to 600.
func NewServer(addr string, search Searcher, maxQueryChars int, logger *slog.Logger) *Server {
	if maxQueryChars < 1 {
		maxQueryChars = 600
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		search:        search,
		maxQueryChars: maxQueryChars,
		logger:        logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	return s.logRequests(cors(mux))
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type searchRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
	Rerank *bool  `json:"rerank"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"index_ready": s.search.Ready(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body is not valid JSON"})
		return
	}
	if len(req.Query) > s.maxQueryChars {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is too long"})
		return
	}

	results, err := s.searchWith(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("search failed", "error", err)
			writeJSON(w, status, errorResponse{Error: "search failed"})
			return
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// searchWith maps the request onto the use case. A request with
// neither top_k nor rerank set takes the configured defaults.
func (s *Server) searchWith(ctx context.Context, req searchRequest) ([]domain.SearchResult, error) {
	if req.TopK == 0 && req.Rerank == nil {
		return s.search.Retrieve(ctx, req.Query)
	}
	rerank := true
	if req.Rerank != nil {
		rerank = *req.Rerank
	}
	topK := req.TopK
	if topK == 0 {
		topK = 5
	}
	return s.search.Search(ctx, req.Query, topK, rerank)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// cors admits the local reading UI origins only.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isLocalOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") ||
		strings.HasPrefix(origin, "http://127.0.0.1:")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
