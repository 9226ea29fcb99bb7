// Package index implements content-addressed document indexing into a
// vector store: hash-derived identity, idempotent re-entry, chunking,
// embedding, and reindex deletion.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/embedding"
	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/vectordb"
	"github.com/Zipstack/unstract-sdk-go/pkg/adapter/x2text"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
	"github.com/Zipstack/unstract-sdk-go/pkg/usage"
)

// KeyInputs feed the content-addressed index key. The adapter configs
// are the opaque metadata dictionaries; chunk parameters are folded in
// as strings so the key survives numeric type drift.
type KeyInputs struct {
	FileHash        string
	VectorDBConfig  map[string]any
	EmbeddingConfig map[string]any
	X2TextConfig    map[string]any
	ChunkSize       int
	ChunkOverlap    int
}

// Key derives the vector store doc_id. The digest covers a JSON
// document with sorted keys at every level, so dictionary ordering in
// adapter configs never changes the key.
func Key(in KeyInputs) (string, error) {
	payload := map[string]any{
		"file_hash":        in.FileHash,
		"vector_db_config": in.VectorDBConfig,
		"embedding_config": in.EmbeddingConfig,
		"x2text_config":    in.X2TextConfig,
		"chunk_size":       strconv.Itoa(in.ChunkSize),
		"chunk_overlap":    strconv.Itoa(in.ChunkOverlap),
	}

	// encoding/json sorts map keys recursively, which makes the
	// serialization canonical for map-shaped configs.
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindIndexing, "could not serialize index key inputs", err)
	}

	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Request describes one indexing run.
type Request struct {
	FilePath     string
	FileHash     string // computed from FilePath when empty
	OutputPath   string // optional extraction output
	ChunkSize    int
	ChunkOverlap int
	Reindex      bool
}

// Indexer ties an extractor, an embedder, and a vector store into the
// indexing pipeline.
type Indexer struct {
	extractor x2text.X2Text
	embedder  embedding.Embedding
	store     vectordb.VectorDB
	fs        storage.FileStorage
	keyConfig KeyConfigs
	logger    *slog.Logger
	metrics   *usage.OpMetrics
	runID     string
}

// KeyConfigs carries the raw adapter metadata of the three adapters for
// identity computation.
type KeyConfigs struct {
	X2Text    map[string]any
	Embedding map[string]any
	VectorDB  map[string]any
}

// Option customizes an Indexer.
type Option func(*Indexer)

// WithFileStorage overrides the backend used to read input files.
func WithFileStorage(fs storage.FileStorage) Option {
	return func(i *Indexer) { i.fs = fs }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Indexer) { i.logger = logger }
}

// WithMetrics records each run's latency under the run id.
func WithMetrics(metrics *usage.OpMetrics, runID string) Option {
	return func(i *Indexer) {
		i.metrics = metrics
		i.runID = runID
	}
}

// New builds an Indexer.
func New(extractor x2text.X2Text, embedder embedding.Embedding, store vectordb.VectorDB, keyConfig KeyConfigs, opts ...Option) *Indexer {
	indexer := &Indexer{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		fs:        storage.NewLocalStorage(),
		keyConfig: keyConfig,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(indexer)
	}
	return indexer
}

// Index runs the pipeline and returns the index key. Re-running with
// identical inputs and Reindex false is a no-op on the store. With a
// metrics recorder installed the run is measured under the INDEX op.
func (i *Indexer) Index(ctx context.Context, req Request) (string, error) {
	if i.metrics == nil {
		return i.index(ctx, req)
	}

	var key string
	collected, err := i.metrics.Measure(ctx, i.runID, usage.OpIndex, func(ctx context.Context) error {
		var opErr error
		key, opErr = i.index(ctx, req)
		return opErr
	})
	if collected != nil {
		i.logger.Debug("indexing measured", "doc_id", key, "time_taken", collected.TimeTaken)
	}
	return key, err
}

func (i *Indexer) index(ctx context.Context, req Request) (string, error) {
	fileHash := req.FileHash
	if fileHash == "" {
		var err error
		fileHash, err = storage.HashFromFile(ctx, i.fs, req.FilePath)
		if err != nil {
			return "", err
		}
	}

	key, err := Key(KeyInputs{
		FileHash:        fileHash,
		VectorDBConfig:  i.keyConfig.VectorDB,
		EmbeddingConfig: i.keyConfig.Embedding,
		X2TextConfig:    i.keyConfig.X2Text,
		ChunkSize:       req.ChunkSize,
		ChunkOverlap:    req.ChunkOverlap,
	})
	if err != nil {
		return "", err
	}

	// The sentinel store persists nothing; identity is all there is.
	if vectordb.IsNoOp(i.store) {
		return key, nil
	}

	exists, err := i.store.HasDoc(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		if !req.Reindex {
			i.logger.Info("document already indexed", "doc_id", key)
			return key, nil
		}
		if err := i.store.Delete(ctx, key); err != nil {
			return "", sdkerr.Wrap(sdkerr.KindSdk,
				fmt.Sprintf("Error deleting nodes for %s", key), err)
		}
		i.logger.Info("deleted stale nodes for reindex", "doc_id", key)
	}

	extraction, err := i.extractor.Process(ctx, req.FilePath, req.OutputPath)
	if err != nil {
		return "", err
	}
	text := extraction.ExtractedText

	chunkSize := req.ChunkSize
	chunkOverlap := req.ChunkOverlap
	if chunkSize == 0 {
		// Whole-document policy: one node sized past the text so no
		// splitter ever fires, with zero overlap.
		chunkSize = len(text) + 10
		chunkOverlap = 0
	}

	chunks := ChunkText(text, chunkSize, chunkOverlap)
	nodes := make([]vectordb.Node, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := i.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return "", err
		}
		nodes = append(nodes, vectordb.Node{
			DocID:     key,
			Text:      chunk.Text,
			Metadata:  map[string]any{"section": "full"},
			Embedding: vector,
		})
	}

	if _, err := i.store.Add(ctx, nodes); err != nil {
		return "", sdkerr.Wrap(sdkerr.KindIndexing,
			fmt.Sprintf("failed to index document %s", key), err)
	}

	i.logger.Info("indexed document", "doc_id", key, "chunks", len(nodes))
	return key, nil
}
