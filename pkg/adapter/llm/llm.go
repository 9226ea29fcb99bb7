// Package llm implements the provider-agnostic LLM adapter shells:
// OpenAI, Anthropic, Ollama, Mistral over their HTTP APIs and Vertex
// through the genai SDK. Shells normalize timeouts, retries, deterministic
// zero-temperature defaults, and provider error surfaces.
package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// Shell-wide defaults shared by every provider.
const (
	// DefaultTimeoutSeconds bounds a single completion call.
	DefaultTimeoutSeconds = 240

	// DefaultMaxRetries for provider-side retry knobs.
	DefaultMaxRetries = 3
)

// testPrompt and testAnswer implement the connection probe: the model is
// asked for the capital of Tamilnadu and must mention Chennai.
const (
	testPrompt = "The capital of Tamilnadu is "
	testAnswer = "chennai"
)

// Usage carries token counts reported by the provider for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the normalized result of a completion call.
type Completion struct {
	Text  string
	Usage Usage
}

// UsageEvent is emitted to the installed listener after every call that
// reports token counts.
type UsageEvent struct {
	Event           string // "llm"
	ExternalService string
	Model           string
	Usage           Usage
}

// UsageListener observes token usage. Installed at most once per adapter
// instance.
type UsageListener interface {
	OnUsage(ctx context.Context, event UsageEvent)
}

// LLM is the capability contract of an LLM adapter.
type LLM interface {
	adapter.Adapter

	// Complete generates a completion for the prompt.
	Complete(ctx context.Context, prompt string) (*Completion, error)

	// Model returns the configured model name.
	Model() string

	// SetUsageListener installs the token usage observer. A second call
	// replaces the first; the shell never double-installs internally.
	SetUsageListener(l UsageListener)
}

// Config is the shared shell configuration decoded from adapter metadata.
type Config struct {
	Model       string  `mapstructure:"model" json:"model"`
	APIKey      string  `mapstructure:"api_key" json:"api_key,omitempty"`
	URL         string  `mapstructure:"url" json:"url,omitempty"`
	Temperature float64 `mapstructure:"temperature" json:"temperature,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Timeout     int     `mapstructure:"timeout" json:"timeout,omitempty"`
	MaxRetries  int     `mapstructure:"max_retries" json:"max_retries,omitempty"`

	// ReasoningModels lists model names that must not receive a
	// temperature parameter.
	ReasoningModels []string `mapstructure:"reasoning_models" json:"reasoning_models,omitempty"`

	// EnableThinking forces temperature 1 when the provider's thinking
	// mode is active.
	EnableThinking bool `mapstructure:"enable_thinking" json:"enable_thinking,omitempty"`
}

// SetDefaults applies shell defaults. Temperature defaults to zero for
// deterministic extraction.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeoutSeconds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// IsReasoningModel reports whether the configured model is on the
// reasoning-only list.
func (c *Config) IsReasoningModel() bool {
	for _, m := range c.ReasoningModels {
		if strings.EqualFold(m, c.Model) {
			return true
		}
	}
	return false
}

// EffectiveTemperature resolves the temperature rules: reasoning models
// get none at all, active thinking forces 1, everything else uses the
// configured value.
func (c *Config) EffectiveTemperature() (float64, bool) {
	if c.IsReasoningModel() {
		return 0, false
	}
	if c.EnableThinking {
		return 1, true
	}
	return c.Temperature, true
}

// MaxTokensKey resolves which wire keyword carries the token budget:
// max_completion_tokens for non-reasoning models, max_tokens otherwise.
func (c *Config) MaxTokensKey() string {
	if c.IsReasoningModel() {
		return "max_tokens"
	}
	return "max_completion_tokens"
}

// TestConnection probes the model with the fixed geography question.
func TestConnection(ctx context.Context, model LLM) error {
	completion, err := model.Complete(ctx, testPrompt)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(completion.Text), testAnswer) {
		e := sdkerr.Newf(sdkerr.KindLLM,
			"LLM based test failed. The credentials was valid however a sane "+
				"response was not obtained from the LLM provided, please recheck the configuration.")
		e.StatusCode = http.StatusBadRequest
		return e
	}
	return nil
}

func emitUsage(ctx context.Context, l UsageListener, service, model string, usage Usage) {
	if l == nil {
		return
	}
	l.OnUsage(ctx, UsageEvent{
		Event:           "llm",
		ExternalService: service,
		Model:           model,
		Usage:           usage,
	})
}
