package vectordb

import (
	"context"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
)

var noOpInfo = adapter.Info{
	ID:          "noOpVectorDb|ca4e6b2a-dfd4-4f4e-b9ec-5891c9f7bfcb",
	Name:        "No-op",
	Kind:        adapter.KindVectorDB,
	Description: "Sentinel store that persists nothing",
	Icon:        "",
}

// NoOp is the sentinel backend. Indexing short-circuits after identity
// computation when it sees one.
type NoOp struct{}

// NewNoOp constructs the sentinel; metadata is ignored.
func NewNoOp(_ map[string]any) (adapter.Adapter, error) {
	return &NoOp{}, nil
}

// IsNoOp reports whether the store is the sentinel backend.
func IsNoOp(v VectorDB) bool {
	_, ok := v.(*NoOp)
	return ok
}

func (n *NoOp) Info() adapter.Info { return noOpInfo }

func (n *NoOp) SchemaJSON() (string, error) { return "{}", nil }

func (n *NoOp) ConfiguredURLs() []string { return nil }

func (n *NoOp) TestConnection(_ context.Context) error { return nil }

func (n *NoOp) Add(_ context.Context, nodes []Node) ([]string, error) {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}
	return ids, nil
}

func (n *NoOp) Search(_ context.Context, _ []float32, _ int, _ map[string]any) ([]Node, error) {
	return nil, nil
}

func (n *NoOp) HasDoc(_ context.Context, _ string) (bool, error) { return false, nil }

func (n *NoOp) Delete(_ context.Context, _ string) error { return nil }

func (n *NoOp) Close() error { return nil }

var _ VectorDB = (*NoOp)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: noOpInfo, New: NewNoOp})
}
