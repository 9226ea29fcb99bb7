package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

var qdrantInfo = adapter.Info{
	ID:          "qdrant|41f64fda-2e4c-4365-89fd-9ce91bee963d",
	Name:        "Qdrant",
	Kind:        adapter.KindVectorDB,
	Description: "Qdrant vector database",
	Icon:        "/icons/adapter-icons/qdrant.png",
}

// QdrantConfig is the backend slice of adapter metadata.
type QdrantConfig struct {
	Settings `mapstructure:",squash"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	APIKey   string `mapstructure:"api_key" json:"api_key,omitempty"`
	UseTLS   bool   `mapstructure:"use_tls" json:"use_tls,omitempty"`
}

// Qdrant stores nodes as points with the doc id in the payload.
type Qdrant struct {
	config     QdrantConfig
	client     *qdrant.Client
	collection string
}

// NewQdrant constructs the backend from adapter metadata.
func NewQdrant(metadata map[string]any) (adapter.Adapter, error) {
	var cfg QdrantConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewQdrantFromConfig(cfg)
}

// NewQdrantFromConfig constructs the backend from a typed config.
func NewQdrantFromConfig(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to create Qdrant client for %s:%d", cfg.Host, cfg.Port), err)
	}

	return &Qdrant{
		config:     cfg,
		client:     client,
		collection: CollectionName(cfg.OrgID, cfg.EmbeddingDimension),
	}, nil
}

func (q *Qdrant) Info() adapter.Info { return qdrantInfo }

func (q *Qdrant) SchemaJSON() (string, error) { return adapter.SchemaFor(&QdrantConfig{}) }

func (q *Qdrant) ConfiguredURLs() []string {
	return []string{fmt.Sprintf("http://%s:%d", q.config.Host, q.config.Port)}
}

func (q *Qdrant) TestConnection(ctx context.Context) error {
	if _, err := q.client.CollectionExists(ctx, q.collection); err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB, "could not reach Qdrant", err)
	}
	return nil
}

func (q *Qdrant) Close() error { return q.client.Close() }

// ensureCollection creates the collection on first use.
func (q *Qdrant) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB, "failed to check collection existence", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return sdkerr.Wrap(sdkerr.KindVectorDB, "failed to create collection", err)
	}
	return nil
}

func (q *Qdrant) Add(ctx context.Context, nodes []Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	if err := q.ensureCollection(ctx, len(nodes[0].Embedding)); err != nil {
		return nil, err
	}

	points := make([]*qdrant.PointStruct, 0, len(nodes))
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		id := node.ID
		if id == "" {
			id = uuid.NewString()
		}

		payload := make(map[string]*qdrant.Value, len(node.Metadata)+2)
		for key, value := range node.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return nil, sdkerr.Wrap(sdkerr.KindVectorDB,
					fmt.Sprintf("failed to convert metadata value for key %s", key), err)
			}
			payload[key] = val
		}
		payload[DocIDKey] = qdrant.NewValueString(node.DocID)
		payload["text"] = qdrant.NewValueString(node.Text)

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(node.Embedding...),
			Payload: payload,
		})
		ids = append(ids, id)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to upsert points", err)
	}
	return ids, nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Node, error) {
	request := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		request.Filter = qdrantFilter(filter)
	}

	result, err := q.client.GetPointsClient().Search(ctx, request)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to search points", err)
	}

	nodes := make([]Node, 0, len(result.Result))
	for _, point := range result.Result {
		nodes = append(nodes, scoredPointToNode(point))
	}
	return nodes, nil
}

func (q *Qdrant) HasDoc(ctx context.Context, docID string) (bool, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return false, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to check collection existence", err)
	}
	if !exists {
		return false, nil
	}

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         qdrantFilter(map[string]any{DocIDKey: docID}),
		Limit:          qdrant.PtrOf(uint32(1)),
	})
	if err != nil {
		return false, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to scroll points", err)
	}
	return len(points) > 0, nil
}

func (q *Qdrant) Delete(ctx context.Context, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: qdrantFilter(map[string]any{DocIDKey: docID}),
			},
		},
	})
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to delete points for %s", docID), err)
	}
	return nil
}

func qdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(key, fmt.Sprintf("%v", value)))
	}
	return &qdrant.Filter{Must: conditions}
}

func scoredPointToNode(point *qdrant.ScoredPoint) Node {
	node := Node{Score: point.Score}

	if point.Id != nil {
		switch id := point.Id.PointIdOptions.(type) {
		case *qdrant.PointId_Uuid:
			node.ID = id.Uuid
		case *qdrant.PointId_Num:
			node.ID = fmt.Sprintf("%d", id.Num)
		}
	}

	node.Metadata = make(map[string]any, len(point.Payload))
	for key, value := range point.Payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			node.Metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			node.Metadata[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			node.Metadata[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			node.Metadata[key] = v.BoolValue
		}
	}
	if text, ok := node.Metadata["text"].(string); ok {
		node.Text = text
		delete(node.Metadata, "text")
	}
	if docID, ok := node.Metadata[DocIDKey].(string); ok {
		node.DocID = docID
	}
	return node
}

var _ VectorDB = (*Qdrant)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: qdrantInfo, New: NewQdrant})
}
