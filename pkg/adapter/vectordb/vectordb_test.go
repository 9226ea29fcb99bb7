package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
)

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "unstract_org1_1536", CollectionName("org1", 1536))
	assert.Equal(t, "unstract_public_768", CollectionName("", 768))
	assert.Equal(t, "unstract_org1", CollectionName("org1", 0))
}

func TestNoOpSentinel(t *testing.T) {
	built, err := adapter.Default().Build(adapter.KindVectorDB,
		"noOpVectorDb|ca4e6b2a-dfd4-4f4e-b9ec-5891c9f7bfcb", nil)
	require.NoError(t, err)

	store, ok := built.(VectorDB)
	require.True(t, ok)
	assert.True(t, IsNoOp(store))

	exists, err := store.HasDoc(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemRoundTrip(t *testing.T) {
	store, err := NewChromemFromConfig(ChromemConfig{
		Settings: Settings{OrgID: "test", EmbeddingDimension: 3},
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	docID := "doc-abc"

	exists, err := store.HasDoc(ctx, docID)
	require.NoError(t, err)
	assert.False(t, exists)

	ids, err := store.Add(ctx, []Node{
		{DocID: docID, Text: "first chunk", Embedding: []float32{1, 0, 0}},
		{DocID: docID, Text: "second chunk", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	exists, err = store.HasDoc(ctx, docID)
	require.NoError(t, err)
	assert.True(t, exists)

	nodes, err := store.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "first chunk", nodes[0].Text)
	assert.Equal(t, docID, nodes[0].DocID)

	require.NoError(t, store.Delete(ctx, docID))

	exists, err = store.HasDoc(ctx, docID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemSearchFilter(t *testing.T) {
	store, err := NewChromemFromConfig(ChromemConfig{
		Settings: Settings{OrgID: "test", EmbeddingDimension: 3},
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Add(ctx, []Node{
		{DocID: "doc-a", Text: "alpha", Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	_, err = store.Add(ctx, []Node{
		{DocID: "doc-b", Text: "beta", Embedding: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	nodes, err := store.Search(ctx, []float32{1, 0, 0}, 2, map[string]any{DocIDKey: "doc-b"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "doc-b", nodes[0].DocID)
}

func TestRegistryListsVectorDBs(t *testing.T) {
	regs := adapter.Default().List(adapter.KindVectorDB)
	families := make(map[string]bool, len(regs))
	for _, reg := range regs {
		families[reg.Info.Family()] = true
	}
	for _, want := range []string{"qdrant", "pinecone", "chromem", "postgres", "noOpVectorDb"} {
		assert.True(t, families[want], "missing %s", want)
	}
}
