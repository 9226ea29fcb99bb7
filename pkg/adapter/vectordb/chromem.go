package vectordb

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

var chromemInfo = adapter.Info{
	ID:          "chromem|98a049ee-40a4-4b53-95ad-1e6bbf0a0a7a",
	Name:        "Chromem",
	Kind:        adapter.KindVectorDB,
	Description: "Embedded vector store with optional on-disk persistence",
	Icon:        "/icons/adapter-icons/chroma.png",
}

// ChromemConfig is the backend slice of adapter metadata. An empty Path
// keeps the store in memory.
type ChromemConfig struct {
	Settings `mapstructure:",squash"`
	Path     string `mapstructure:"path" json:"path,omitempty"`
	Compress bool   `mapstructure:"compress" json:"compress,omitempty"`
}

// Chromem is the in-process backend used for local development and
// tests. Chunk ids are derived from the doc id so existence checks need
// no similarity query.
type Chromem struct {
	config     ChromemConfig
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromem constructs the backend from adapter metadata.
func NewChromem(metadata map[string]any) (adapter.Adapter, error) {
	var cfg ChromemConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewChromemFromConfig(cfg)
}

// NewChromemFromConfig constructs the backend from a typed config.
func NewChromemFromConfig(cfg ChromemConfig) (*Chromem, error) {
	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to open persistent store", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(CollectionName(cfg.OrgID, cfg.EmbeddingDimension), nil, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to open collection", err)
	}

	return &Chromem{config: cfg, db: db, collection: collection}, nil
}

// chunkID derives the deterministic id of the n-th chunk of a document.
func chunkID(docID string, n int) string {
	return fmt.Sprintf("%s-%d", docID, n)
}

func (c *Chromem) Info() adapter.Info { return chromemInfo }

func (c *Chromem) SchemaJSON() (string, error) { return adapter.SchemaFor(&ChromemConfig{}) }

func (c *Chromem) ConfiguredURLs() []string { return nil }

func (c *Chromem) TestConnection(_ context.Context) error { return nil }

func (c *Chromem) Close() error { return nil }

func (c *Chromem) Add(ctx context.Context, nodes []Node) ([]string, error) {
	docs := make([]chromem.Document, 0, len(nodes))
	ids := make([]string, 0, len(nodes))
	for i, node := range nodes {
		id := node.ID
		if id == "" {
			id = chunkID(node.DocID, i)
		}

		metadata := map[string]string{DocIDKey: node.DocID}
		for key, value := range node.Metadata {
			metadata[key] = fmt.Sprintf("%v", value)
		}

		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   node.Text,
			Embedding: node.Embedding,
			Metadata:  metadata,
		})
		ids = append(ids, id)
	}

	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to add documents", err)
	}
	return ids, nil
}

func (c *Chromem) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Node, error) {
	if count := c.collection.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	where := make(map[string]string, len(filter))
	for key, value := range filter {
		where[key] = fmt.Sprintf("%v", value)
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "query failed", err)
	}

	nodes := make([]Node, 0, len(results))
	for _, result := range results {
		metadata := make(map[string]any, len(result.Metadata))
		for key, value := range result.Metadata {
			metadata[key] = value
		}
		nodes = append(nodes, Node{
			ID:       result.ID,
			DocID:    result.Metadata[DocIDKey],
			Text:     result.Content,
			Metadata: metadata,
			Score:    result.Similarity,
		})
	}
	return nodes, nil
}

func (c *Chromem) HasDoc(ctx context.Context, docID string) (bool, error) {
	_, err := c.collection.GetByID(ctx, chunkID(docID, 0))
	return err == nil, nil
}

func (c *Chromem) Delete(ctx context.Context, docID string) error {
	err := c.collection.Delete(ctx, map[string]string{DocIDKey: docID}, nil)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to delete documents for %s", docID), err)
	}
	return nil
}

var _ VectorDB = (*Chromem)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: chromemInfo, New: NewChromem})
}
