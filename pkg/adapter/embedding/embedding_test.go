package embedding

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

func embedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAITestConnection(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data":  []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0}},
			"usage": map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	})

	e, err := NewOpenAIFromConfig(Config{APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)
	require.NoError(t, e.TestConnection(context.Background()))
}

func TestOpenAIEmptyEmbeddingFailsProbe(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{}, "index": 0}},
		})
	})

	e, err := NewOpenAIFromConfig(Config{APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	err = e.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindEmbedding))
	assert.Contains(t, err.Error(), "embedding obtained was empty")
}

func TestDimensionProbe(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		vector := make([]float32, 1536)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vector, "index": 0}},
		})
	})

	e, err := NewOpenAIFromConfig(Config{APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	dim, err := Dimension(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 1536, dim)
}

func TestOpenAIRateLimit(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Rate limit exceeded"},
		})
	})

	e, err := NewOpenAIFromConfig(Config{APIKey: "sk-test", URL: server.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindRateLimit))
}

func TestCohereEmbed(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req cohereEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "search_document", req.InputType)
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.5, 0.6}},
			"meta":       map[string]any{"billed_units": map[string]any{"input_tokens": 3}},
		})
	})

	e, err := NewCohereFromConfig(Config{APIKey: "key", URL: server.URL})
	require.NoError(t, err)

	listener := &recordingListener{}
	e.SetUsageListener(listener)

	vector, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vector)
	require.Len(t, listener.events, 1)
	assert.Equal(t, "cohere", listener.events[0].ExternalService)
	assert.Equal(t, 3, listener.events[0].Tokens)
}

func TestOllamaEmbedError(t *testing.T) {
	server := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "model not loaded"})
	})

	e, err := NewOllamaFromConfig(Config{Model: "nomic-embed-text", URL: server.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)

	var se *sdkerr.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, sdkerr.KindEmbedding, se.Kind)
	assert.Equal(t, "model not loaded", se.Message)
}

type recordingListener struct {
	events []UsageEvent
}

func (r *recordingListener) OnUsage(_ context.Context, event UsageEvent) {
	r.events = append(r.events, event)
}
