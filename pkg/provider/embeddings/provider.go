// Package embeddings defines the Provider interface for query embedding
// backends.
//
// The knowledge base is indexed offline; at request time only the visitor's
// question is embedded, one string per call, and the vector is matched
// against the stored chunk embeddings. The provider must therefore use the
// same model and dimensionality the index was built with.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to a dense vector.
type Provider interface {
	// Embed returns the embedding of text, of length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector length, or 0 when it is not yet known.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}
