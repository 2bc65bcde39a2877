// ABOUTME: Process-wide lazily built handle to the retrieval index
// ABOUTME: Single-flight build guard; concurrent first users share one build

package retrieval

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Handle is the shared entry point to the retrieval index. The underlying
// index is built lazily on first use; concurrent first callers await the same
// build. Once built the index is immutable and shared read-only until Reset.
type Handle struct {
	cfg      Config
	embedder Embedder
	logger   *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	index  *Index
	builds atomic.Int64
}

// NewHandle creates an unbuilt handle. No corpus work happens until the
// first Search call.
func NewHandle(cfg Config, embedder Embedder) *Handle {
	return &Handle{
		cfg:      cfg.withDefaults(),
		embedder: embedder,
		logger:   slog.Default().With("component", "retrieval"),
	}
}

// Search ensures the index is built, then runs a top-k similarity search.
// Build failures surface as ErrIndexUnavailable and are not cached: the next
// caller retries the build.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	index, err := h.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return index.Search(ctx, query, k)
}

// ensure returns the cached index, building it single-flighted if needed.
func (h *Handle) ensure(ctx context.Context) (*Index, error) {
	h.mu.RLock()
	index := h.index
	h.mu.RUnlock()
	if index != nil {
		return index, nil
	}

	result, err, _ := h.group.Do("build", func() (any, error) {
		// Re-check under the group: a Reset racing a build could have
		// repopulated the cache already.
		h.mu.RLock()
		cached := h.index
		h.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		h.builds.Add(1)
		h.logger.Info("building retrieval index", "docs_dir", h.cfg.DocsDir)
		built, err := buildIndex(ctx, h.cfg, h.embedder)
		if err != nil {
			h.logger.Warn("retrieval index build failed", "error", err)
			return nil, err
		}
		h.logger.Info("retrieval index built", "chunks", len(built.chunks))

		h.mu.Lock()
		h.index = built
		h.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Index), nil
}

// Builds reports how many index builds have run. Used by tests to verify
// the single-flight guarantee.
func (h *Handle) Builds() int64 {
	return h.builds.Load()
}

// Reset discards the cached index. The next Search triggers a rebuild.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.index = nil
	h.mu.Unlock()
}
