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

const mistralDefaultHost = "https://api.mistral.ai/v1"

var mistralInfo = adapter.Info{
	ID:          "mistral|00f766a5-6d6d-47ea-9f6c-ddb1e8a94e82",
	Name:        "Mistral AI",
	Kind:        adapter.KindLLM,
	Description: "Mistral AI chat models",
	Icon:        "/icons/adapter-icons/Mistral%20AI.png",
}

// Mistral implements the LLM shell for the Mistral chat API.
// The API is wire compatible with OpenAI chat completions but only
// accepts the max_tokens keyword.
type Mistral struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type mistralRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// NewMistral constructs the shell from adapter metadata.
func NewMistral(metadata map[string]any) (adapter.Adapter, error) {
	var cfg Config
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewMistralFromConfig(cfg)
}

// NewMistralFromConfig constructs the shell from a typed config.
func NewMistralFromConfig(cfg Config) (*Mistral, error) {
	cfg.SetDefaults()
	if cfg.URL == "" {
		cfg.URL = mistralDefaultHost
	}
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Mistral API key is required")
	}
	if cfg.Model == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Mistral model is required")
	}
	return &Mistral{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (m *Mistral) Info() adapter.Info { return mistralInfo }

func (m *Mistral) SchemaJSON() (string, error) { return adapter.SchemaFor(&Config{}) }

func (m *Mistral) ConfiguredURLs() []string { return []string{m.config.URL} }

func (m *Mistral) Model() string { return m.config.Model }

func (m *Mistral) SetUsageListener(l UsageListener) { m.listener = l }

func (m *Mistral) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, m)
}

func (m *Mistral) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := mistralRequest{
		Model:    m.config.Model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	}
	if m.config.MaxTokens > 0 {
		request.MaxTokens = m.config.MaxTokens
	}
	if temp, ok := m.config.EffectiveTemperature(); ok {
		request.Temperature = &temp
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not encode completion request", err)
	}

	endpoint := strings.TrimSuffix(m.config.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not reach Mistral", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseMistralErr(resp.StatusCode, body)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "malformed completion response", err)
	}
	if len(response.Choices) == 0 {
		return nil, sdkerr.New(sdkerr.KindLLM, "no completion choices returned")
	}

	completion := &Completion{
		Text: response.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
	}
	emitUsage(ctx, m.listener, "mistral", m.config.Model, completion.Usage)
	return completion, nil
}

func parseMistralErr(statusCode int, body []byte) error {
	var envelope struct {
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		message = envelope.Message
	}

	if statusCode == http.StatusTooManyRequests {
		e := sdkerr.New(sdkerr.KindRateLimit, fmt.Sprintf("Mistral rate limit reached: %s", message))
		e.StatusCode = http.StatusTooManyRequests
		return e
	}

	e := sdkerr.New(sdkerr.KindLLM, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}

var _ LLM = (*Mistral)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: mistralInfo, New: NewMistral})
}
