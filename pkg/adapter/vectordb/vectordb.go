// Package vectordb implements the vector store adapter shells. A store
// holds embedded chunks keyed by a content-addressed doc_id; the
// collection identity folds in the caller's organization and the
// embedding dimension.
package vectordb

import (
	"context"
	"fmt"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
)

// DocIDKey is the metadata key carrying the content-addressed document
// identity on every stored node.
const DocIDKey = "doc_id"

// Node is one embedded chunk in the store.
type Node struct {
	ID        string
	DocID     string
	Text      string
	Metadata  map[string]any
	Embedding []float32
	Score     float32
}

// VectorDB is the capability contract of a vector store adapter.
type VectorDB interface {
	adapter.Adapter

	// Add inserts nodes and returns their ids.
	Add(ctx context.Context, nodes []Node) ([]string, error)

	// Search returns the topK nearest nodes, optionally constrained by
	// an exact-match metadata filter.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Node, error)

	// HasDoc reports whether any node with the given doc_id exists.
	HasDoc(ctx context.Context, docID string) (bool, error)

	// Delete removes every node belonging to the doc_id.
	Delete(ctx context.Context, docID string) error

	// Close releases the backend connection.
	Close() error
}

// Settings is the shared slice of vector store adapter metadata. The
// embedding dimension is part of collection identity, so callers must
// resolve it before construction.
type Settings struct {
	OrgID              string `mapstructure:"org_id" json:"org_id,omitempty"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension,omitempty"`
}

// CollectionName derives the backend collection for an organization and
// embedding dimension. Stores of different dimensions never share a
// collection.
func CollectionName(orgID string, dimension int) string {
	if orgID == "" {
		orgID = "public"
	}
	if dimension <= 0 {
		return fmt.Sprintf("unstract_%s", orgID)
	}
	return fmt.Sprintf("unstract_%s_%d", orgID, dimension)
}
