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

const (
	anthropicDefaultHost      = "https://api.anthropic.com"
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
	anthropicThinkingBudget   = 1024
)

var anthropicInfo = adapter.Info{
	ID:          "anthropic|90ebd4cd-2f19-4cef-a884-9eeb6ac0f203",
	Name:        "Anthropic",
	Kind:        adapter.KindLLM,
	Description: "Anthropic Claude models",
	Icon:        "/icons/adapter-icons/Anthropic.png",
}

// Anthropic implements the LLM shell for the Anthropic messages API.
type Anthropic struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic constructs the shell from adapter metadata.
func NewAnthropic(metadata map[string]any) (adapter.Adapter, error) {
	var cfg Config
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewAnthropicFromConfig(cfg)
}

// NewAnthropicFromConfig constructs the shell from a typed config.
func NewAnthropicFromConfig(cfg Config) (*Anthropic, error) {
	cfg.SetDefaults()
	if cfg.URL == "" {
		cfg.URL = anthropicDefaultHost
	}
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Anthropic model is required")
	}
	return &Anthropic{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func (a *Anthropic) Info() adapter.Info { return anthropicInfo }

func (a *Anthropic) SchemaJSON() (string, error) { return adapter.SchemaFor(&Config{}) }

func (a *Anthropic) ConfiguredURLs() []string { return []string{a.config.URL} }

func (a *Anthropic) Model() string { return a.config.Model }

func (a *Anthropic) SetUsageListener(l UsageListener) { a.listener = l }

func (a *Anthropic) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, a)
}

func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := anthropicRequest{
		Model:     a.config.Model,
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	if a.config.MaxTokens > 0 {
		request.MaxTokens = a.config.MaxTokens
	}
	if temp, ok := a.config.EffectiveTemperature(); ok {
		request.Temperature = &temp
	}
	if a.config.EnableThinking {
		request.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: anthropicThinkingBudget}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not encode completion request", err)
	}

	endpoint := strings.TrimSuffix(a.config.URL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not reach Anthropic", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAnthropicErr(resp.StatusCode, body)
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "malformed completion response", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, sdkerr.New(sdkerr.KindLLM, "no completion text returned")
	}

	completion := &Completion{
		Text: text.String(),
		Usage: Usage{
			PromptTokens:     response.Usage.InputTokens,
			CompletionTokens: response.Usage.OutputTokens,
			TotalTokens:      response.Usage.InputTokens + response.Usage.OutputTokens,
		},
	}
	emitUsage(ctx, a.listener, "anthropic", a.config.Model, completion.Usage)
	return completion, nil
}

func parseAnthropicErr(statusCode int, body []byte) error {
	var envelope anthropicError
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	if statusCode == http.StatusTooManyRequests || envelope.Error.Type == "rate_limit_error" {
		e := sdkerr.New(sdkerr.KindRateLimit, fmt.Sprintf("Anthropic rate limit reached: %s", message))
		e.StatusCode = http.StatusTooManyRequests
		return e
	}

	e := sdkerr.New(sdkerr.KindLLM, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}

var _ LLM = (*Anthropic)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: anthropicInfo, New: NewAnthropic})
}
