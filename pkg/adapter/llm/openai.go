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

const openAIDefaultHost = "https://api.openai.com/v1"

var openAIInfo = adapter.Info{
	ID:          "openai|502ecf49-e47c-445c-9907-6d4b90c5cd17",
	Name:        "OpenAI",
	Kind:        adapter.KindLLM,
	Description: "OpenAI chat completion models",
	Icon:        "/icons/adapter-icons/OpenAI.png",
}

// OpenAI implements the LLM shell for the OpenAI chat completions API.
type OpenAI struct {
	config   Config
	client   *http.Client
	listener UsageListener
}

type openAIRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
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
	if cfg.APIKey == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "OpenAI model is required")
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

// Complete issues a chat completion call.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (*Completion, error) {
	request := openAIRequest{
		Model:    o.config.Model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	}
	if temp, ok := o.config.EffectiveTemperature(); ok {
		request.Temperature = &temp
	}
	if o.config.MaxTokens > 0 {
		if o.config.MaxTokensKey() == "max_tokens" {
			request.MaxTokens = o.config.MaxTokens
		} else {
			request.MaxCompletionTokens = o.config.MaxTokens
		}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not encode completion request", err)
	}

	endpoint := strings.TrimSuffix(o.config.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not reach OpenAI", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "could not read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseOpenAIErr(resp.StatusCode, body)
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
	emitUsage(ctx, o.listener, "openai", o.config.Model, completion.Usage)
	return completion, nil
}

// parseOpenAIErr maps the OpenAI error envelope onto the taxonomy.
// Rate-limit responses become RateLimitError.
func parseOpenAIErr(statusCode int, body []byte) error {
	var envelope openAIError
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	if statusCode == http.StatusTooManyRequests || envelope.Error.Type == "insufficient_quota" {
		e := sdkerr.New(sdkerr.KindRateLimit, fmt.Sprintf("OpenAI rate limit reached: %s", message))
		e.StatusCode = http.StatusTooManyRequests
		return e
	}

	e := sdkerr.New(sdkerr.KindLLM, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}

var _ LLM = (*OpenAI)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: openAIInfo, New: NewOpenAI})
}
