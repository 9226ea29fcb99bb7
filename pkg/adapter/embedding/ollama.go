package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

const ollamaDefaultHost = "http://localhost:11434"

var ollamaInfo = adapter.Info{
	ID:          "ollama|d58d7080-55a9-4542-becd-8433528e127b",
	Name:        "Ollama",
	Kind:        adapter.KindEmbedding,
	Description: "Self hosted embedding models served by Ollama",
	Icon:        "/icons/adapter-icons/ollama.png",
}

// Ollama implements the embedding shell for a local Ollama server.
type Ollama struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error"`
}

// NewOllama constructs the shell from adapter metadata.
func NewOllama(metadata map[string]any) (adapter.Adapter, error) {
	var cfg Config
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewOllamaFromConfig(cfg)
}

// NewOllamaFromConfig constructs the shell from a typed config.
func NewOllamaFromConfig(cfg Config) (*Ollama, error) {
	cfg.SetDefaults()
	if cfg.URL == "" {
		cfg.URL = ollamaDefaultHost
	}
	if cfg.Model == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Ollama model is required")
	}
	return &Ollama{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (o *Ollama) Info() adapter.Info { return ollamaInfo }

func (o *Ollama) SchemaJSON() (string, error) { return adapter.SchemaFor(&Config{}) }

func (o *Ollama) ConfiguredURLs() []string { return []string{o.config.URL} }

func (o *Ollama) Model() string { return o.config.Model }

func (o *Ollama) SetUsageListener(l UsageListener) { o.listener = l }

func (o *Ollama) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, o)
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: o.config.Model, Prompt: text})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not encode embed request", err)
	}

	endpoint := strings.TrimSuffix(o.config.URL, "/") + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not reach Ollama", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseEmbedErr(sdkerr.KindEmbedding, resp.StatusCode, body)
	}

	var response ollamaEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "malformed embed response", err)
	}
	if response.Error != "" {
		return nil, sdkerr.New(sdkerr.KindEmbedding, response.Error)
	}
	if len(response.Embedding) == 0 {
		return nil, sdkerr.New(sdkerr.KindEmbedding, "no embedding returned")
	}

	emitUsage(ctx, o.listener, "ollama", o.config.Model, 0)
	return response.Embedding, nil
}

var _ Embedding = (*Ollama)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: ollamaInfo, New: NewOllama})
}
