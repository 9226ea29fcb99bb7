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

const cohereDefaultHost = "https://api.cohere.ai/v1"

var cohereInfo = adapter.Info{
	ID:          "cohere|88cc5b61-ab0a-4a1b-96a9-7dbd4b8aff25",
	Name:        "Cohere",
	Kind:        adapter.KindEmbedding,
	Description: "Cohere embedding models",
	Icon:        "/icons/adapter-icons/Cohere.png",
}

// Cohere implements the embedding shell for the Cohere embed API.
type Cohere struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type,omitempty"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Meta       struct {
		BilledUnits struct {
			InputTokens int `json:"input_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

// NewCohere constructs the shell from adapter metadata.
func NewCohere(metadata map[string]any) (adapter.Adapter, error) {
	var cfg Config
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewCohereFromConfig(cfg)
}

// NewCohereFromConfig constructs the shell from a typed config.
func NewCohereFromConfig(cfg Config) (*Cohere, error) {
	cfg.SetDefaults()
	if cfg.URL == "" {
		cfg.URL = cohereDefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = "embed-english-v3.0"
	}
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Cohere API key is required")
	}
	return &Cohere{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (c *Cohere) Info() adapter.Info { return cohereInfo }

func (c *Cohere) SchemaJSON() (string, error) { return adapter.SchemaFor(&Config{}) }

func (c *Cohere) ConfiguredURLs() []string { return []string{c.config.URL} }

func (c *Cohere) Model() string { return c.config.Model }

func (c *Cohere) SetUsageListener(l UsageListener) { c.listener = l }

func (c *Cohere) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, c)
}

func (c *Cohere) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(cohereEmbedRequest{
		Texts:     []string{text},
		Model:     c.config.Model,
		InputType: "search_document",
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not encode embed request", err)
	}

	endpoint := strings.TrimSuffix(c.config.URL, "/") + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not reach Cohere", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseEmbedErr(sdkerr.KindEmbedding, resp.StatusCode, body)
	}

	var response cohereEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "malformed embed response", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, sdkerr.New(sdkerr.KindEmbedding, "no embedding returned")
	}

	emitUsage(ctx, c.listener, "cohere", c.config.Model, response.Meta.BilledUnits.InputTokens)
	return response.Embeddings[0], nil
}

var _ Embedding = (*Cohere)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: cohereInfo, New: NewCohere})
}
