// Package mock provides an in-memory test double for [knowledge.Retriever].
//
// Search results are either fixed via Results or computed by brute-force
// cosine similarity over Chunks, honouring the metadata filter.
package mock

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/MrWong99/natuvoice/internal/knowledge"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Embedding []float32
	TopK      int
	Filter    knowledge.Filter
}

// Retriever is a configurable [knowledge.Retriever] and [knowledge.Indexer].
type Retriever struct {
	mu sync.Mutex

	// Results, when non-nil, is returned by Search (truncated to topK)
	// instead of searching Chunks.
	Results []knowledge.Result

	// Chunks is the corpus searched when Results is nil. Upsert writes here.
	Chunks []knowledge.Chunk

	// Err, if non-nil, is returned by Search.
	Err error

	calls []SearchCall
}

// Search implements [knowledge.Retriever].
func (m *Retriever) Search(_ context.Context, embedding []float32, topK int, filter knowledge.Filter) ([]knowledge.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SearchCall{Embedding: slices.Clone(embedding), TopK: topK, Filter: filter})
	if m.Err != nil {
		return nil, m.Err
	}

	var out []knowledge.Result
	if m.Results != nil {
		out = slices.Clone(m.Results)
	} else {
		for _, c := range m.Chunks {
			if c.Matches(filter) {
				out = append(out, knowledge.Result{Chunk: c, Score: cosine(embedding, c.Embedding)})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	if out == nil {
		out = []knowledge.Result{}
	}
	return out, nil
}

// Upsert implements [knowledge.Indexer].
func (m *Retriever) Upsert(_ context.Context, chunk knowledge.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.Chunks {
		if c.ID == chunk.ID {
			m.Chunks[i] = chunk
			return nil
		}
	}
	m.Chunks = append(m.Chunks, chunk)
	return nil
}

// Calls returns a copy of every recorded Search call.
func (m *Retriever) Calls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var (
	_ knowledge.Retriever = (*Retriever)(nil)
	_ knowledge.Indexer   = (*Retriever)(nil)
)
