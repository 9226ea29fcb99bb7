package vectordb

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

var pineconeInfo = adapter.Info{
	ID:          "pinecone|83881133-485d-4ecc-b1f7-0009f96dc74a",
	Name:        "Pinecone",
	Kind:        adapter.KindVectorDB,
	Description: "Pinecone managed vector database",
	Icon:        "/icons/adapter-icons/pinecone.png",
}

// PineconeConfig is the backend slice of adapter metadata.
type PineconeConfig struct {
	Settings  `mapstructure:",squash"`
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	IndexName string `mapstructure:"index_name" json:"index_name"`
}

// Pinecone keeps each organization in its own namespace of a shared
// index. Chunk ids carry the doc id as a prefix so deletion can use
// prefix listing on serverless indexes.
type Pinecone struct {
	config    PineconeConfig
	client    *pinecone.Client
	namespace string
}

// NewPinecone constructs the backend from adapter metadata.
func NewPinecone(metadata map[string]any) (adapter.Adapter, error) {
	var cfg PineconeConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewPineconeFromConfig(cfg)
}

// NewPineconeFromConfig constructs the backend from a typed config.
func NewPineconeFromConfig(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Pinecone API key is required")
	}
	if cfg.IndexName == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Pinecone index name is required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to create Pinecone client", err)
	}

	return &Pinecone{
		config:    cfg,
		client:    client,
		namespace: CollectionName(cfg.OrgID, cfg.EmbeddingDimension),
	}, nil
}

func (p *Pinecone) Info() adapter.Info { return pineconeInfo }

func (p *Pinecone) SchemaJSON() (string, error) { return adapter.SchemaFor(&PineconeConfig{}) }

func (p *Pinecone) ConfiguredURLs() []string { return nil }

func (p *Pinecone) TestConnection(ctx context.Context) error {
	if _, err := p.client.DescribeIndex(ctx, p.config.IndexName); err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("could not describe index %s", p.config.IndexName), err)
	}
	return nil
}

func (p *Pinecone) Close() error { return nil }

func (p *Pinecone) connect(ctx context.Context) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, p.config.IndexName)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to describe index %s", p.config.IndexName), err)
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      index.Host,
		Namespace: p.namespace,
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to create index connection", err)
	}
	return conn, nil
}

func (p *Pinecone) Add(ctx context.Context, nodes []Node) ([]string, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	vectors := make([]*pinecone.Vector, 0, len(nodes))
	ids := make([]string, 0, len(nodes))
	for i, node := range nodes {
		id := node.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", node.DocID, i)
		}

		fields := map[string]any{DocIDKey: node.DocID, "text": node.Text}
		for key, value := range node.Metadata {
			fields[key] = value
		}
		metadata, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to convert metadata", err)
		}

		vectors = append(vectors, &pinecone.Vector{Id: id, Values: node.Embedding, Metadata: metadata})
		ids = append(ids, id)
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to upsert vectors", err)
	}
	return ids, nil
}

func (p *Pinecone) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Node, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to convert filter", err)
		}
	}

	response, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "query failed", err)
	}

	nodes := make([]Node, 0, len(response.Matches))
	for _, match := range response.Matches {
		if match.Vector == nil {
			continue
		}
		node := Node{ID: match.Vector.Id, Score: match.Score}
		if match.Vector.Metadata != nil {
			node.Metadata = match.Vector.Metadata.AsMap()
			if text, ok := node.Metadata["text"].(string); ok {
				node.Text = text
				delete(node.Metadata, "text")
			}
			if docID, ok := node.Metadata[DocIDKey].(string); ok {
				node.DocID = docID
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *Pinecone) HasDoc(ctx context.Context, docID string) (bool, error) {
	ids, err := p.listDocVectors(ctx, docID, 1)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (p *Pinecone) Delete(ctx context.Context, docID string) error {
	ids, err := p.listDocVectors(ctx, docID, 0)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to delete vectors for %s", docID), err)
	}
	return nil
}

// listDocVectors pages through ids sharing the doc prefix. A limit of
// zero collects everything.
func (p *Pinecone) listDocVectors(ctx context.Context, docID string, limit int) ([]string, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	prefix := docID + "#"
	var ids []string
	var token *string
	for {
		request := &pinecone.ListVectorsRequest{Prefix: &prefix, PaginationToken: token}
		if limit > 0 {
			pageLimit := uint32(limit)
			request.Limit = &pageLimit
		}

		response, err := conn.ListVectors(ctx, request)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to list vectors", err)
		}
		for _, id := range response.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}

		if limit > 0 && len(ids) >= limit {
			return ids, nil
		}
		if response.NextPaginationToken == nil {
			return ids, nil
		}
		token = response.NextPaginationToken
	}
}

var _ VectorDB = (*Pinecone)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: pineconeInfo, New: NewPinecone})
}
