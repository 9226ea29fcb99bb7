package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

const ollamaDefaultHost = "http://localhost:11434"

var ollamaInfo = adapter.Info{
	ID:          "ollama|4b8bd31a-ce42-48d4-9d69-f29c12e0f276",
	Name:        "Ollama",
	Kind:        adapter.KindLLM,
	Description: "Self hosted models served by Ollama",
	Icon:        "/icons/adapter-icons/ollama.png",
}

// Ollama implements the LLM shell for a local Ollama server.
type Ollama struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
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

func (o *Ollama) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := ollamaRequest{
		Model:    o.config.Model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	}
	if temp, ok := o.config.EffectiveTemperature(); ok {
		request.Options.Temperature = &temp
	}
	if o.config.MaxTokens > 0 {
		request.Options.NumPredict = o.config.MaxTokens
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not encode completion request", err)
	}

	endpoint := strings.TrimSuffix(o.config.URL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not reach Ollama", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseOllamaErr(resp.StatusCode, body, o.config.Model)
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "malformed completion response", err)
	}
	if response.Message.Content == "" {
		return nil, sdkerr.New(sdkerr.KindLLM, "no completion text returned")
	}

	completion := &Completion{
		Text: response.Message.Content,
		Usage: Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
			TotalTokens:      response.PromptEvalCount + response.EvalCount,
		},
	}
	emitUsage(ctx, o.listener, "ollama", o.config.Model, completion.Usage)
	return completion, nil
}

func parseOllamaErr(statusCode int, body []byte, model string) error {
	var envelope ollamaResponse
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}

	if statusCode == http.StatusNotFound {
		e := sdkerr.New(sdkerr.KindLLM,
			fmt.Sprintf("model '%s' was not found on the Ollama server, try pulling it first: %s", model, message))
		e.StatusCode = http.StatusNotFound
		return e
	}

	e := sdkerr.New(sdkerr.KindLLM, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}

var _ LLM = (*Ollama)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: ollamaInfo, New: NewOllama})
}
