// Package embedding implements the embedding adapter shells. Providers
// expose a single-text embed call; batching stays an internal concern.
package embedding

import (
	"context"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

const (
	// DefaultTimeoutSeconds bounds a single embed call.
	DefaultTimeoutSeconds = 240

	// DefaultMaxRetries for provider-side retry knobs.
	DefaultMaxRetries = 3

	// testText is embedded by the connection probe; any non-empty vector
	// passes.
	testText = "This is a test"
)

// UsageEvent reports token consumption of one embed call.
type UsageEvent struct {
	Event           string // "embedding"
	ExternalService string
	Model           string
	Tokens          int
}

// UsageListener observes embedding token usage.
type UsageListener interface {
	OnUsage(ctx context.Context, event UsageEvent)
}

// Embedding is the capability contract of an embedding adapter.
type Embedding interface {
	adapter.Adapter

	// Embed returns the embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the configured model name.
	Model() string

	// SetUsageListener installs the token usage observer.
	SetUsageListener(l UsageListener)
}

// Config is the shared shell configuration decoded from adapter metadata.
type Config struct {
	Model      string `mapstructure:"model" json:"model"`
	APIKey     string `mapstructure:"api_key" json:"api_key,omitempty"`
	URL        string `mapstructure:"url" json:"url,omitempty"`
	Timeout    int    `mapstructure:"timeout" json:"timeout,omitempty"`
	MaxRetries int    `mapstructure:"max_retries" json:"max_retries,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeoutSeconds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// TestConnection embeds a fixed short string and confirms non-empty
// output.
func TestConnection(ctx context.Context, e Embedding) error {
	vector, err := e.Embed(ctx, testText)
	if err != nil {
		return err
	}
	if len(vector) == 0 {
		return sdkerr.New(sdkerr.KindEmbedding,
			"Error while testing embedding connection, the embedding obtained was empty")
	}
	return nil
}

// Dimension probes the provider with a known short string and returns
// the vector length.
func Dimension(ctx context.Context, e Embedding) (int, error) {
	vector, err := e.Embed(ctx, testText)
	if err != nil {
		return 0, err
	}
	if len(vector) == 0 {
		return 0, sdkerr.New(sdkerr.KindEmbedding, "embedding dimension probe returned an empty vector")
	}
	return len(vector), nil
}

func emitUsage(ctx context.Context, l UsageListener, service, model string, tokens int) {
	if l == nil {
		return
	}
	l.OnUsage(ctx, UsageEvent{
		Event:           "embedding",
		ExternalService: service,
		Model:           model,
		Tokens:          tokens,
	})
}
