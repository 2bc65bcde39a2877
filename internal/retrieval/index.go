// ABOUTME: Immutable cosine-similarity index over embedded corpus chunks
// ABOUTME: Built once from a corpus directory, then shared read-only

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrIndexUnavailable means the index could not be built or queried:
// missing corpus, embedding failure, or an empty build.
var ErrIndexUnavailable = errors.New("retrieval index unavailable")

// embedBatchSize bounds how many chunks go to the embedder per call.
const embedBatchSize = 64

// Embedder turns texts into embedding vectors. Implemented by the OpenAI
// provider adapter.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Passage is one retrieval result.
type Passage struct {
	Content string
	Source  string
	Score   float64
}

// Config controls corpus loading and chunking.
type Config struct {
	DocsDir      string
	ChunkSize    int // characters per chunk, default 300
	ChunkOverlap int // characters carried between chunks, default 30
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 300
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 30
	}
	return c
}

// Index is an immutable similarity-search structure. Safe for concurrent use
// once built.
type Index struct {
	chunks   []chunk
	embedder Embedder
}

// buildIndex loads the corpus, chunks it, and embeds every chunk.
func buildIndex(ctx context.Context, cfg Config, embedder Embedder) (*Index, error) {
	cfg = cfg.withDefaults()

	docs, err := loadCorpus(cfg.DocsDir)
	if err != nil {
		return nil, err
	}

	var chunks []chunk
	for _, doc := range docs {
		chunks = append(chunks, splitChunks(doc, cfg.ChunkSize, cfg.ChunkOverlap)...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: corpus produced no chunks", ErrIndexUnavailable)
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, c.Content)
		}
		vectors, err := embedder.Embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding corpus: %v", ErrIndexUnavailable, err)
		}
		if len(vectors) != len(inputs) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", ErrIndexUnavailable, len(vectors), len(inputs))
		}
		for i, vec := range vectors {
			chunks[start+i].vector = vec
			chunks[start+i].norm = vectorNorm(vec)
		}
	}

	return &Index{chunks: chunks, embedder: embedder}, nil
}

// Search returns the top-k most similar passages for the query.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = 2
	}
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrIndexUnavailable, err)
	}
	queryVec := vectors[0]
	queryNorm := vectorNorm(queryVec)

	scored := make([]Passage, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		scored = append(scored, Passage{
			Content: c.Content,
			Source:  c.Source,
			Score:   cosine(queryVec, queryNorm, c.vector, c.norm),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
