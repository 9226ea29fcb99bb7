package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

var postgresInfo = adapter.Info{
	ID:          "postgres|6d337b23-7d87-4b29-9a71-f35c8a88a2de",
	Name:        "Postgres",
	Kind:        adapter.KindVectorDB,
	Description: "PostgreSQL with the pgvector extension",
	Icon:        "/icons/adapter-icons/postgres.png",
}

// PostgresConfig is the backend slice of adapter metadata.
type PostgresConfig struct {
	Settings `mapstructure:",squash"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Database string `mapstructure:"database" json:"database"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode,omitempty"`
}

// Postgres keeps each collection in its own table with a pgvector
// embedding column sized to the collection's dimension.
type Postgres struct {
	config PostgresConfig
	pool   *pgxpool.Pool
	table  string
}

// NewPostgres constructs the backend from adapter metadata.
func NewPostgres(metadata map[string]any) (adapter.Adapter, error) {
	var cfg PostgresConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewPostgresFromConfig(cfg)
}

// NewPostgresFromConfig constructs the backend from a typed config.
func NewPostgresFromConfig(cfg PostgresConfig) (*Postgres, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}
	if cfg.Database == "" || cfg.User == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Postgres database and user are required")
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to create connection pool", err)
	}

	return &Postgres{
		config: cfg,
		pool:   pool,
		table:  CollectionName(cfg.OrgID, cfg.EmbeddingDimension),
	}, nil
}

func (p *Postgres) Info() adapter.Info { return postgresInfo }

func (p *Postgres) SchemaJSON() (string, error) { return adapter.SchemaFor(&PostgresConfig{}) }

func (p *Postgres) ConfiguredURLs() []string {
	return []string{fmt.Sprintf("postgres://%s:%d", p.config.Host, p.config.Port)}
}

func (p *Postgres) TestConnection(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB, "could not reach Postgres", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// ensureTable creates the collection table and its doc_id index on
// first use.
func (p *Postgres) ensureTable(ctx context.Context, dimension int) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id uuid PRIMARY KEY,
			doc_id text NOT NULL,
			content text NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, p.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (doc_id)`, p.table+"_doc_id_idx", p.table),
	}
	for _, statement := range statements {
		if _, err := p.pool.Exec(ctx, statement); err != nil {
			return sdkerr.Wrap(sdkerr.KindVectorDB, "failed to prepare collection table", err)
		}
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, nodes []Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	if err := p.ensureTable(ctx, len(nodes[0].Embedding)); err != nil {
		return nil, err
	}

	insert := fmt.Sprintf(`INSERT INTO %q (id, doc_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, p.table)

	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		id := node.ID
		if id == "" {
			id = uuid.NewString()
		}

		metadata, err := json.Marshal(node.Metadata)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to encode metadata", err)
		}

		_, err = p.pool.Exec(ctx, insert, id, node.DocID, node.Text, metadata,
			pgvector.NewVector(node.Embedding))
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to insert node", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Postgres) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Node, error) {
	args := []any{pgvector.NewVector(vector)}
	var conditions []string
	if docID, ok := filter[DocIDKey]; ok {
		args = append(args, docID)
		conditions = append(conditions, fmt.Sprintf("doc_id = $%d", len(args)))
	}
	rest := make(map[string]any)
	for key, value := range filter {
		if key != DocIDKey {
			rest[key] = value
		}
	}
	if len(rest) > 0 {
		condition, err := json.Marshal(rest)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to encode filter", err)
		}
		args = append(args, condition)
		conditions = append(conditions, fmt.Sprintf("metadata @> $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, topK)

	query := fmt.Sprintf(`SELECT id, doc_id, content, metadata, embedding <=> $1 AS distance
		FROM %q %s ORDER BY distance LIMIT $%d`, p.table, where, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "query failed", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var node Node
		var metadata []byte
		var distance float32
		if err := rows.Scan(&node.ID, &node.DocID, &node.Text, &metadata, &distance); err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to scan row", err)
		}
		if err := json.Unmarshal(metadata, &node.Metadata); err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindVectorDB, "failed to decode metadata", err)
		}
		node.Score = 1 - distance
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (p *Postgres) HasDoc(ctx context.Context, docID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %q WHERE doc_id = $1)`, p.table)
	var exists bool
	if err := p.pool.QueryRow(ctx, query, docID).Scan(&exists); err != nil {
		// The table only exists after the first insert.
		return false, nil
	}
	return exists, nil
}

func (p *Postgres) Delete(ctx context.Context, docID string) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE doc_id = $1`, p.table)
	if _, err := p.pool.Exec(ctx, query, docID); err != nil {
		return sdkerr.Wrap(sdkerr.KindVectorDB,
			fmt.Sprintf("failed to delete nodes for %s", docID), err)
	}
	return nil
}

var _ VectorDB = (*Postgres)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: postgresInfo, New: NewPostgres})
}
