// Package prompt implements the client for the prompt service, which
// answers prompts over indexed documents on the SDK's behalf.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/usage"
)

// connectMsg is the user-facing message for transport-level failures.
const connectMsg = "Unable to connect to prompt service, please contact the admin."

// Service endpoints.
const (
	pathAnswerPrompt         = "/answer-prompt"
	pathAnswerPromptPublic   = "/answer-prompt-public"
	pathSinglePassExtraction = "/single-pass-extraction"
	pathSummarize            = "/summarize"
)

// Response is the uniform result envelope of every prompt-service call.
// On success StructureOutput carries the raw response body; on failure
// Error carries the extracted message.
type Response struct {
	Status          string  `json:"status"`
	Error           string  `json:"error,omitempty"`
	Cost            float64 `json:"cost"`
	StructureOutput string  `json:"structure_output,omitempty"`
}

// Statuses reported in Response.Status.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Client talks to the prompt service.
type Client struct {
	config  Config
	http    *http.Client
	metrics *usage.OpMetrics
	runID   string
}

// Option customizes a Client.
type Option func(*Client)

// WithMetrics records answer-prompt latency under the run id.
func WithMetrics(metrics *usage.OpMetrics, runID string) Option {
	return func(c *Client) {
		c.metrics = metrics
		c.runID = runID
	}
}

// NewClient creates a prompt-service client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, err.Error(), err)
	}
	client := &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewClientFromEnv creates a client from the PROMPT_* variables.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	return NewClient(ConfigFromEnv(), opts...)
}

// AnswerPrompt runs the answer-prompt flow with the given payload. When
// public is true the unauthenticated public endpoint is used. With a
// metrics recorder installed the call is measured under the
// ANSWER_PROMPTS op.
func (c *Client) AnswerPrompt(ctx context.Context, payload map[string]any, public bool) Response {
	path := pathAnswerPrompt
	if public {
		path = pathAnswerPromptPublic
	}
	if c.metrics == nil {
		return c.post(ctx, path, payload, !public)
	}

	var resp Response
	c.metrics.Measure(ctx, c.runID, usage.OpAnswerPrompts, func(ctx context.Context) error {
		resp = c.post(ctx, path, payload, !public)
		return nil
	})
	return resp
}

// SinglePassExtraction extracts all prompts of a tool in one LLM pass.
func (c *Client) SinglePassExtraction(ctx context.Context, payload map[string]any) Response {
	return c.post(ctx, pathSinglePassExtraction, payload, true)
}

// Summarize condenses the document context before prompt answering.
func (c *Client) Summarize(ctx context.Context, payload map[string]any) Response {
	return c.post(ctx, pathSummarize, payload, true)
}

// post performs one prompt-service call. Errors are folded into the
// Response envelope rather than returned; callers branch on Status.
func (c *Client) post(ctx context.Context, path string, payload map[string]any, authenticated bool) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{Status: StatusError, Error: "could not encode prompt payload: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return Response{Status: StatusError, Error: "could not build prompt request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{Status: StatusError, Error: connectMsg}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: StatusError, Error: "could not read prompt response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{Status: StatusError, Error: errorMessage(raw)}
	}

	return Response{Status: StatusOK, StructureOutput: string(raw)}
}

// errorMessage extracts a best-effort message from a JSON error body,
// falling back to the raw text.
func errorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "prompt service request failed"
	}
	return text
}
