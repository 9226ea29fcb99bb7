package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zipstack/unstract-sdk-go/pkg/retry"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Host:   server.URL,
		APIKey: "test-key",
		Retry:  fastRetry(),
	})
	require.NoError(t, err)
	return client, server
}

func TestGetAdapterConfigStripsIdentity(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "adapter-123", r.URL.Query().Get("adapter_instance_id"))

		json.NewEncoder(w).Encode(map[string]any{
			"adapter_id": "openai|6dec9d67-f93f-40c7-8e35-bcf407e13fcd",
			"adapter_metadata": map[string]any{
				"adapter_name": "my-openai",
				"adapter_type": "LLM",
				"model":        "gpt-4o-mini",
				"api_key":      "sk-test",
			},
		})
	}))

	cfg, err := client.GetAdapterConfig(context.Background(), "adapter-123")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider())
	assert.NotContains(t, cfg.Metadata, "adapter_name")
	assert.NotContains(t, cfg.Metadata, "adapter_type")
	assert.Equal(t, "gpt-4o-mini", cfg.Metadata["model"])
}

func TestGetAdapterConfigNotFound(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no such adapter"})
	}))

	_, err := client.GetAdapterConfig(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindAdapter))
	assert.Contains(t, err.Error(), "not found")
}

func TestGetPlatformDetails(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/platform_details", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"organization_id": "org-42"})
	}))

	details, err := client.GetPlatformDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "org-42", details.OrganizationID)
}

func TestPushUsage(t *testing.T) {
	var received UsageRecord
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/usage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))

	record := UsageRecord{
		UsageType:        "llm",
		ExternalService:  "openai",
		WorkflowID:       "wf-1",
		ExecutionID:      "ex-1",
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
	}
	require.NoError(t, client.PushUsage(context.Background(), record))
	assert.Equal(t, record, received)
}

func TestRetriesTransientFailures(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"organization_id": "org-42"})
	}))

	details, err := client.GetPlatformDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "org-42", details.OrganizationID)
	assert.Equal(t, 3, attempts)
}

func TestNonRetryableErrorSurfacesMessage(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "bad adapter id"})
	}))

	_, err := client.GetPlatformDetails(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad adapter id")
}

func TestUpstream500Becomes502(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.GetPlatformDetails(context.Background())
	require.Error(t, err)
	e, ok := sdkerr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, e.StatusCode)
}

func TestConnectionErrorMessage(t *testing.T) {
	client, err := NewClient(Config{
		Host:    "http://127.0.0.1:1",
		APIKey:  "k",
		Timeout: 200 * time.Millisecond,
		Retry: retry.Config{
			MaxRetries:    1,
			InitialDelay:  time.Millisecond,
			MaxDelay:      2 * time.Millisecond,
			BackoffFactor: 2,
		},
	})
	require.NoError(t, err)

	_, err = client.GetPlatformDetails(context.Background())
	require.Error(t, err)
	e, ok := sdkerr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Unable to connect to platform service, please contact the admin.", e.Message)
}

func TestRetriesExhaustedMapToSdkError(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "maintenance window"}`))
	}))

	_, err := client.GetPlatformDetails(context.Background())
	require.Error(t, err)
	e, ok := sdkerr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, e.StatusCode)
	assert.Equal(t, "maintenance window", e.Message)
}

func TestPublicAdapterFromEnv(t *testing.T) {
	id := "openai|00000000-1111-2222-3333-444444444444"
	t.Setenv(PublicAdapterEnvKey(id), `{
		"adapter_id": "openai|00000000-1111-2222-3333-444444444444",
		"adapter_metadata": {"adapter_name": "public", "model": "gpt-4o-mini"}
	}`)

	// No server needed: the lookup must never hit the platform.
	client, err := NewClient(Config{Host: "http://platform.invalid", APIKey: "k", Retry: fastRetry()})
	require.NoError(t, err)

	cfg, err := client.GetAdapterConfig(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider())
	assert.NotContains(t, cfg.Metadata, "adapter_name")
}

func TestBaseURLTrailingSlash(t *testing.T) {
	cfg := Config{Host: "http://platform/", Port: 3001}
	assert.Equal(t, "http://platform:3001", cfg.BaseURL())
	assert.False(t, strings.HasSuffix(cfg.BaseURL(), "/"))
}
