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

const openAIDefaultHost = "https://api.openai.com/v1"

var openAIInfo = adapter.Info{
	ID:          "openai|717a0b0e-3bbc-41dc-9f0c-5689437a1151",
	Name:        "OpenAI",
	Kind:        adapter.KindEmbedding,
	Description: "OpenAI text embedding models",
	Icon:        "/icons/adapter-icons/OpenAI.png",
}

// OpenAI implements the embedding shell for the OpenAI embeddings API.
type OpenAI struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAI constructs the shell from adapter metadata.
func NewOpenAI(metadata map[string]any) (adapter.Adapter, error) {
	var cfg Config
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewOpenAIFromConfig(cfg)
}

// NewOpenAIFromConfig constructs the shell from a typed config.
func NewOpenAIFromConfig(cfg Config) (*OpenAI, error) {
	cfg.SetDefaults()
	if cfg.URL == "" {
		cfg.URL = openAIDefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "OpenAI API key is required")
	}
	return &OpenAI{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (o *OpenAI) Info() adapter.Info { return openAIInfo }

func (o *OpenAI) SchemaJSON() (string, error) { return adapter.SchemaFor(&Config{}) }

func (o *OpenAI) ConfiguredURLs() []string { return []string{o.config.URL} }

func (o *OpenAI) Model() string { return o.config.Model }

func (o *OpenAI) SetUsageListener(l UsageListener) { o.listener = l }

func (o *OpenAI) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, o)
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(openAIEmbedRequest{Model: o.config.Model, Input: []string{text}})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not encode embed request", err)
	}

	endpoint := strings.TrimSuffix(o.config.URL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not reach OpenAI", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "could not read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseEmbedErr(sdkerr.KindEmbedding, resp.StatusCode, body)
	}

	var response openAIEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindEmbedding, "malformed embed response", err)
	}
	if len(response.Data) == 0 {
		return nil, sdkerr.New(sdkerr.KindEmbedding, "no embedding returned")
	}

	emitUsage(ctx, o.listener, "openai", o.config.Model, response.Usage.TotalTokens)
	return response.Data[0].Embedding, nil
}

// parseEmbedErr maps provider error envelopes onto the taxonomy. The
// OpenAI and Cohere surfaces both put the message under error.message
// or message.
func parseEmbedErr(kind sdkerr.Kind, statusCode int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			message = envelope.Error.Message
		} else if envelope.Message != "" {
			message = envelope.Message
		}
	}

	if statusCode == http.StatusTooManyRequests {
		e := sdkerr.New(sdkerr.KindRateLimit, message)
		e.StatusCode = http.StatusTooManyRequests
		return e
	}

	e := sdkerr.New(kind, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}

var _ Embedding = (*OpenAI)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: openAIInfo, New: NewOpenAI})
}
