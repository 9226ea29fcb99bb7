// Package platform implements the authenticated client for the central
// platform service: adapter configuration lookup, organization resolution,
// usage accounting, and connector retrieval.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Zipstack/unstract-sdk-go/pkg/retry"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// connectMsg is the user-facing message for transport-level failures.
const connectMsg = "Unable to connect to platform service, please contact the admin."

// ConnectorKind selects the connector family for GetConnectorInstance.
type ConnectorKind string

const (
	ConnectorFileSystem ConnectorKind = "FILE_SYSTEM"
	ConnectorDatabase   ConnectorKind = "DATABASE"
)

// AdapterConfig is an adapter instance configuration fetched by id.
// Metadata is the opaque provider-specific config with the identifying
// fields already stripped.
type AdapterConfig struct {
	AdapterID   string         `json:"adapter_id"`
	AdapterName string         `json:"adapter_name,omitempty"`
	AdapterType string         `json:"adapter_type,omitempty"`
	Metadata    map[string]any `json:"adapter_metadata"`
}

// Provider returns the provider family encoded in the adapter id
// ("family|uuid").
func (a *AdapterConfig) Provider() string {
	family, _, _ := strings.Cut(a.AdapterID, "|")
	return family
}

// PlatformDetails carries the organization context of the API key.
type PlatformDetails struct {
	OrganizationID string `json:"organization_id"`
}

// UsageRecord is one token accounting entry pushed to /usage.
type UsageRecord struct {
	UsageType        string `json:"usage_type"`
	ExternalService  string `json:"external_service"`
	WorkflowID       string `json:"workflow_id,omitempty"`
	ExecutionID      string `json:"execution_id,omitempty"`
	RunID            string `json:"run_id,omitempty"`
	EmbeddingTokens  int    `json:"embedding_tokens"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// CustomToolMetadata is an exported prompt-registry tool definition.
type CustomToolMetadata struct {
	ToolID       string         `json:"tool_id"`
	ToolMetadata map[string]any `json:"tool_metadata"`
}

// ConnectorConfig is a filesystem or database connector instance.
type ConnectorConfig struct {
	ConnectorID       string         `json:"connector_id"`
	ConnectorName     string         `json:"connector_name,omitempty"`
	ConnectorMetadata map[string]any `json:"connector_metadata"`
}

// Client talks to the platform service.
type Client struct {
	config  Config
	http    *http.Client
	retryer *retry.Retryer
}

// NewClient creates a platform client, validating the config and retry
// parameters.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, err.Error(), err)
	}
	retryer, err := retry.New(cfg.Retry)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "invalid retry configuration", err)
	}
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		retryer: retryer,
	}, nil
}

// NewClientFromEnv creates a client from PLATFORM_SERVICE_* variables.
func NewClientFromEnv() (*Client, error) {
	return NewClient(ConfigFromEnv())
}

// GetAdapterConfig fetches an adapter instance configuration. Public
// adapters resolve from the environment instead of the platform; the
// identifying adapter_name/adapter_type fields are stripped from the
// returned metadata either way.
func (c *Client) GetAdapterConfig(ctx context.Context, adapterInstanceID string) (*AdapterConfig, error) {
	if cfg, ok := publicAdapterConfig(adapterInstanceID); ok {
		return cfg, nil
	}

	query := url.Values{"adapter_instance_id": {adapterInstanceID}}
	body, err := c.get(ctx, "/adapter_instance", query)
	if err != nil {
		if asStatus(err) == http.StatusNotFound {
			notFound := sdkerr.Newf(sdkerr.KindAdapter,
				"adapter instance %s not found", adapterInstanceID)
			notFound.StatusCode = http.StatusNotFound
			notFound.Err = err
			return nil, notFound
		}
		return nil, err
	}

	var cfg AdapterConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed adapter instance response", err)
	}
	stripIdentity(&cfg)
	return &cfg, nil
}

// GetPlatformDetails resolves the organization for the configured API key.
func (c *Client) GetPlatformDetails(ctx context.Context) (*PlatformDetails, error) {
	body, err := c.get(ctx, "/platform_details", nil)
	if err != nil {
		return nil, err
	}
	var details PlatformDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed platform details response", err)
	}
	return &details, nil
}

// PushUsage submits a usage record. Callers treat failure as non-fatal;
// the error is returned for logging only.
func (c *Client) PushUsage(ctx context.Context, record UsageRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "could not encode usage record", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/usage", nil, payload)
	return err
}

// GetCustomToolMetadata fetches an exported prompt-studio tool.
func (c *Client) GetCustomToolMetadata(ctx context.Context, promptRegistryID string) (*CustomToolMetadata, error) {
	query := url.Values{"prompt_registry_id": {promptRegistryID}}
	body, err := c.get(ctx, "/custom_tool_instance", query)
	if err != nil {
		return nil, err
	}
	var meta CustomToolMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed custom tool response", err)
	}
	return &meta, nil
}

// GetConnectorInstance fetches a filesystem or database connector config.
func (c *Client) GetConnectorInstance(ctx context.Context, connectorInstanceID string, kind ConnectorKind) (*ConnectorConfig, error) {
	query := url.Values{"connector_instance_id": {connectorInstanceID}}
	body, err := c.get(ctx, "/connector_instance/"+string(kind), query)
	if err != nil {
		return nil, err
	}
	var cfg ConnectorConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed connector instance response", err)
	}
	return &cfg, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// do performs one HTTP call under the retry schedule. Both idempotent GETs
// and the usage POST go through here.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	endpoint := c.config.BaseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := retry.DoWithResult(ctx, c.retryer, method+" "+path, func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not build platform request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if retry.IsRetryable(err) {
				return nil, err
			}
			return nil, sdkerr.Wrap(sdkerr.KindSdk, connectMsg, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not read platform response", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			switch resp.StatusCode {
			case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return nil, &retry.StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
			}
			e := sdkerr.New(sdkerr.KindSdk, errorMessage(body))
			e.StatusCode = sdkerr.ResolveStatus(resp.StatusCode)
			if resp.StatusCode == http.StatusNotFound {
				e.StatusCode = http.StatusNotFound
			}
			return nil, e
		}

		return body, nil
	})
	if err != nil {
		return nil, normalizeError(err)
	}
	return body, nil
}

// normalizeError maps the error surviving the retry schedule onto the
// SDK taxonomy: exhausted 502/503/504 responses become SdkErrors with
// their status code, and transport failures surface the admin message.
func normalizeError(err error) error {
	if _, ok := sdkerr.AsError(err); ok {
		return err
	}
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		message := statusErr.Message
		if message == "" {
			message = "platform service request failed"
		}
		e := sdkerr.New(sdkerr.KindSdk, message)
		e.StatusCode = sdkerr.ResolveStatus(statusErr.StatusCode)
		e.Err = statusErr
		return e
	}
	return sdkerr.Wrap(sdkerr.KindSdk, connectMsg, err)
}

// errorMessage extracts a best-effort message from a JSON error body,
// preferring the "error" then "message" keys, else the raw text.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "platform service request failed"
	}
	return text
}

func asStatus(err error) int {
	if e, ok := sdkerr.AsError(err); ok {
		return e.StatusCode
	}
	return 0
}

// publicAdapterConfig resolves adapters whose configuration is supplied by
// environment variable rather than platform lookup. The env key is the
// instance id uppercased with every non-alphanumeric rune mapped to '_',
// and the value is the verbatim config JSON.
func publicAdapterConfig(adapterInstanceID string) (*AdapterConfig, bool) {
	raw := os.Getenv(PublicAdapterEnvKey(adapterInstanceID))
	if raw == "" {
		return nil, false
	}
	var cfg AdapterConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, false
	}
	if cfg.AdapterID == "" {
		cfg.AdapterID = adapterInstanceID
	}
	stripIdentity(&cfg)
	return &cfg, true
}

// PublicAdapterEnvKey maps an adapter instance id to its public config
// environment variable name.
func PublicAdapterEnvKey(adapterInstanceID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 32
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, adapterInstanceID)
	return mapped
}

func stripIdentity(cfg *AdapterConfig) {
	if cfg.Metadata == nil {
		return
	}
	delete(cfg.Metadata, "adapter_name")
	delete(cfg.Metadata, "adapter_type")
}
