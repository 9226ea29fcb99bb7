package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

func openAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func completionBody(text string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": text}},
		},
		"usage": map[string]any{
			"prompt_tokens":     7,
			"completion_tokens": 3,
			"total_tokens":      10,
		},
	}
}

func TestOpenAITestConnection(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(completionBody("Chennai is the capital of Tamil Nadu"))
	})

	model, err := NewOpenAIFromConfig(Config{Model: "gpt-4o", APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, model.TestConnection(context.Background()))
}

func TestOpenAITestConnectionWrongAnswer(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("Mumbai is the capital of Maharashtra"))
	})

	model, err := NewOpenAIFromConfig(Config{Model: "gpt-4o", APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	err = model.TestConnection(context.Background())
	require.Error(t, err)

	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, sdkerr.KindLLM, e.Kind)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Contains(t, e.Message, "LLM based test failed")
}

func TestOpenAIRateLimit(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Rate limit exceeded", "type": "requests"},
		})
	})

	model, err := NewOpenAIFromConfig(Config{Model: "gpt-4o", APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	_, err = model.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindRateLimit))

	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
}

func TestOpenAIUpstream500Becomes502(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "boom"},
		})
	})

	model, err := NewOpenAIFromConfig(Config{Model: "gpt-4o", APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	_, err = model.Complete(context.Background(), "hello")
	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusBadGateway, e.StatusCode)
	assert.Equal(t, "boom", e.Message)
}

func TestOpenAIMaxTokensKeyword(t *testing.T) {
	var got map[string]any
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(completionBody("ok"))
	})

	// Non-reasoning models use the max_completion_tokens keyword.
	model, err := NewOpenAIFromConfig(Config{
		Model: "gpt-4o", APIKey: "sk-test", URL: server.URL, MaxTokens: 64,
	})
	require.NoError(t, err)
	_, err = model.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotContains(t, got, "max_tokens")
	assert.Equal(t, float64(64), got["max_completion_tokens"])

	// Reasoning models use max_tokens and omit temperature.
	got = nil
	model, err = NewOpenAIFromConfig(Config{
		Model: "o3", APIKey: "sk-test", URL: server.URL, MaxTokens: 64,
		ReasoningModels: []string{"o3"},
	})
	require.NoError(t, err)
	_, err = model.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, float64(64), got["max_tokens"])
	assert.NotContains(t, got, "max_completion_tokens")
	assert.NotContains(t, got, "temperature")
}

func TestEffectiveTemperature(t *testing.T) {
	cfg := Config{Model: "gpt-4o", Temperature: 0.3}
	temp, ok := cfg.EffectiveTemperature()
	assert.True(t, ok)
	assert.Equal(t, 0.3, temp)

	cfg.EnableThinking = true
	temp, ok = cfg.EffectiveTemperature()
	assert.True(t, ok)
	assert.Equal(t, 1.0, temp)

	cfg = Config{Model: "o3", ReasoningModels: []string{"O3"}}
	_, ok = cfg.EffectiveTemperature()
	assert.False(t, ok)
}

func TestAnthropicComplete(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "Chennai"}},
			"usage":   map[string]any{"input_tokens": 5, "output_tokens": 2},
		})
	})

	model, err := NewAnthropicFromConfig(Config{
		Model: "claude-sonnet-4", APIKey: "key", URL: server.URL,
	})
	require.NoError(t, err)

	completion, err := model.Complete(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "Chennai", completion.Text)
	assert.Equal(t, 5, completion.Usage.PromptTokens)
	assert.Equal(t, 7, completion.Usage.TotalTokens)
}

func TestOllamaModelNotFound(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "model 'llama9' not found"})
	})

	model, err := NewOllamaFromConfig(Config{Model: "llama9", URL: server.URL})
	require.NoError(t, err)

	_, err = model.Complete(context.Background(), "hello")
	var e *sdkerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
	assert.Contains(t, e.Message, "try pulling it first")
}

type recordingListener struct {
	events []UsageEvent
}

func (r *recordingListener) OnUsage(_ context.Context, event UsageEvent) {
	r.events = append(r.events, event)
}

func TestUsageListenerReceivesTokenCounts(t *testing.T) {
	server := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("Chennai"))
	})

	model, err := NewMistralFromConfig(Config{
		Model: "mistral-large", APIKey: "key", URL: server.URL,
	})
	require.NoError(t, err)

	listener := &recordingListener{}
	model.SetUsageListener(listener)

	_, err = model.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, listener.events, 1)
	assert.Equal(t, "mistral", listener.events[0].ExternalService)
	assert.Equal(t, 10, listener.events[0].Usage.TotalTokens)
}
