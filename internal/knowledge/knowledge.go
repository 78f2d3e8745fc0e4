// Package knowledge defines the product knowledge base the answer service
// retrieves evidence from.
//
// The catalogue is chunked and embedded offline. At request time only a
// similarity search over the stored chunk embeddings is performed, narrowed
// by an optional equality filter on chunk metadata.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Well-known metadata keys written by the ingestion job.
const (
	KeyProductID   = "product_id"
	KeyProductName = "product_name"
	KeySection     = "section"
	KeySourcePDF   = "source_pdf"
	KeySourcePages = "source_pages"
)

// Chunk is one embedded passage of the catalogue.
type Chunk struct {
	ID string

	// Text is the passage shown to the model as evidence.
	Text string

	// Embedding is the vector the passage was indexed with. It is left empty
	// on search results.
	Embedding []float32

	// ProductID, ProductName and Section locate the passage in the catalogue.
	ProductID   string
	ProductName string
	Section     string

	// SourcePDF and SourcePages point back to the printed source.
	SourcePDF   string
	SourcePages []string

	// Metadata holds any additional string attributes usable in a [Filter].
	Metadata map[string]string
}

// Result is a chunk returned by a similarity search.
type Result struct {
	Chunk Chunk

	// Score is the cosine similarity to the query, in [-1, 1]. Higher is
	// closer.
	Score float64
}

// Filter restricts a search to chunks whose metadata equals every value.
// Empty values are ignored.
type Filter map[string]string

// Keys returns the non-empty filter keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if strings.TrimSpace(k) == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Retriever finds the chunks closest to a query embedding.
//
// Implementations must be safe for concurrent use.
type Retriever interface {
	// Search returns at most topK results ordered by descending score.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error)
}

// Indexer stores pre-embedded chunks.
type Indexer interface {
	// Upsert inserts chunk or replaces an existing chunk with the same ID.
	Upsert(ctx context.Context, chunk Chunk) error
}

// Label returns the display name of the chunk's product, falling back to the
// product id.
func (c Chunk) Label() string {
	switch {
	case c.ProductName != "":
		return c.ProductName
	case c.ProductID != "":
		return c.ProductID
	default:
		return "Producto"
	}
}

// Value returns the metadata value for key, resolving the well-known keys to
// their struct fields.
func (c Chunk) Value(key string) string {
	switch key {
	case KeyProductID:
		return c.ProductID
	case KeyProductName:
		return c.ProductName
	case KeySection:
		return c.Section
	case KeySourcePDF:
		return c.SourcePDF
	case KeySourcePages:
		return strings.Join(c.SourcePages, ",")
	}
	return c.Metadata[key]
}

// Matches reports whether the chunk satisfies every entry of f.
func (c Chunk) Matches(f Filter) bool {
	for _, k := range f.Keys() {
		if c.Value(k) != f[k] {
			return false
		}
	}
	return true
}

// FromMetadata fills the well-known fields of c from a JSON metadata object.
// Remaining scalar values are kept in c.Metadata as strings.
func (c *Chunk) FromMetadata(meta map[string]any) {
	for k, v := range meta {
		switch k {
		case KeyProductID:
			c.ProductID = scalar(v)
		case KeyProductName:
			c.ProductName = scalar(v)
		case KeySection:
			c.Section = scalar(v)
		case KeySourcePDF:
			c.SourcePDF = scalar(v)
		case KeySourcePages:
			c.SourcePages = pages(v)
		default:
			if s := scalar(v); s != "" {
				if c.Metadata == nil {
					c.Metadata = make(map[string]string)
				}
				c.Metadata[k] = s
			}
		}
	}
}

// ToMetadata is the inverse of [Chunk.FromMetadata].
func (c Chunk) ToMetadata() map[string]any {
	meta := make(map[string]any, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[KeyProductID] = c.ProductID
	meta[KeyProductName] = c.ProductName
	meta[KeySection] = c.Section
	meta[KeySourcePDF] = c.SourcePDF
	if c.SourcePages == nil {
		meta[KeySourcePages] = []string{}
	} else {
		meta[KeySourcePages] = c.SourcePages
	}
	return meta
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool, int, int64:
		return fmt.Sprint(t)
	}
	return ""
}

// pages accepts a JSON array of numbers or strings, or a single scalar.
func pages(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if s := scalar(v); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, p := range list {
		if s := scalar(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
