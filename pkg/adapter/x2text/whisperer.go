package x2text

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// Polling knobs, read from the environment at construction.
const (
	EnvPollInterval    = "ADAPTER_LLMW_POLL_INTERVAL"
	EnvMaxPolls        = "ADAPTER_LLMW_MAX_POLLS"
	EnvPollIntervalV2  = "ADAPTER_LLMW_POLL_INTERVAL_V2"
	EnvMaxPollsV2      = "ADAPTER_LLMW_MAX_POLLS_V2"
	EnvStatusRetries   = "ADAPTER_LLMW_STATUS_RETRIES"
	EnvWaitTimeout     = "ADAPTER_LLMW_WAIT_TIMEOUT"
	defaultPollSeconds = 30
	defaultMaxPolls    = 30
	defaultRetries     = 5
	defaultWaitTimeout = 900
)

// connectErrMsg is returned verbatim whenever the service is
// unreachable.
const connectErrMsg = "Unable to connect to LLMWhisperer service, please check the URL"

// Terminal extraction statuses.
const (
	statusProcessed = "processed"
	statusDelivered = "delivered"
)

// WhispererConfig is the adapter metadata slice shared by both wire
// dialects. The knobs are passed through to the service as query
// parameters on submit.
type WhispererConfig struct {
	URL                     string  `mapstructure:"url" json:"url"`
	APIKey                  string  `mapstructure:"unstract_key" json:"unstract_key,omitempty"`
	Mode                    string  `mapstructure:"mode" json:"mode,omitempty"`
	OutputMode              string  `mapstructure:"output_mode" json:"output_mode,omitempty"`
	LineSplitterTolerance   float64 `mapstructure:"line_splitter_tolerance" json:"line_splitter_tolerance,omitempty"`
	LineSplitterStrategy    string  `mapstructure:"line_splitter_strategy" json:"line_splitter_strategy,omitempty"`
	HorizontalStretchFactor float64 `mapstructure:"horizontal_stretch_factor" json:"horizontal_stretch_factor,omitempty"`
	PagesToExtract          string  `mapstructure:"pages_to_extract" json:"pages_to_extract,omitempty"`
	MarkVerticalLines       bool    `mapstructure:"mark_vertical_lines" json:"mark_vertical_lines,omitempty"`
	MarkHorizontalLines     bool    `mapstructure:"mark_horizontal_lines" json:"mark_horizontal_lines,omitempty"`
	PageSeparator           string  `mapstructure:"page_seperator" json:"page_seperator,omitempty"`
	Tag                     string  `mapstructure:"tag" json:"tag,omitempty"`
	UseWebhook              string  `mapstructure:"use_webhook" json:"use_webhook,omitempty"`
	WebhookMetadata         string  `mapstructure:"webhook_metadata" json:"webhook_metadata,omitempty"`
	MedianFilterSize        int     `mapstructure:"median_filter_size" json:"median_filter_size,omitempty"`
	GaussianBlurRadius      float64 `mapstructure:"gaussian_blur_radius" json:"gaussian_blur_radius,omitempty"`
}

// dialect pins down where a wire version diverges from the other.
type dialect struct {
	submitPath    string
	statusPath    string
	retrievePath  string
	hashParam     string        // query parameter naming the job
	textKey       string        // retrieve response field carrying the text
	retrieveQuery url.Values    // extra retrieve parameters
	pollInterval  time.Duration
	maxPolls      int
	statusRetries int // tolerated transient status failures, v2 only
}

// whisperer drives the submit/poll/retrieve state machine for one
// dialect.
type whisperer struct {
	info    adapter.Info
	config  WhispererConfig
	dialect dialect
	client  *http.Client
	fs      storage.FileStorage
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}

func newWhisperer(info adapter.Info, cfg WhispererConfig, d dialect) (*whisperer, error) {
	if cfg.URL == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "LLMWhisperer URL is required")
	}
	return &whisperer{
		info:    info,
		config:  cfg,
		dialect: d,
		client: &http.Client{
			Timeout: time.Duration(envInt(EnvWaitTimeout, defaultWaitTimeout)) * time.Second,
		},
		fs: storage.NewLocalStorage(),
	}, nil
}

// SetFileStorage overrides the backend used for input and output paths.
func (w *whisperer) SetFileStorage(fs storage.FileStorage) { w.fs = fs }

func (w *whisperer) Info() adapter.Info { return w.info }

func (w *whisperer) SchemaJSON() (string, error) { return adapter.SchemaFor(&WhispererConfig{}) }

func (w *whisperer) ConfiguredURLs() []string { return []string{w.config.URL} }

// TestConnection asks the service for its capability listing.
func (w *whisperer) TestConnection(ctx context.Context) error {
	endpoint := strings.TrimSuffix(w.config.URL, "/") + w.dialect.submitPath
	endpoint = strings.TrimSuffix(endpoint, "/whisper") + "/get-usage-info"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindExtractor, "could not build request", err)
	}
	req.Header.Set("unstract-key", w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return sdkerr.New(sdkerr.KindExtractor, connectErrMsg)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return whispererHTTPErr(resp.StatusCode, body)
	}
	return nil
}

// Process runs the full submit, poll, retrieve cycle and persists the
// output with its metadata sidecar.
func (w *whisperer) Process(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	data, err := storage.ReadAll(ctx, w.fs, inputPath)
	if err != nil {
		return nil, err
	}

	record, accepted, err := w.submit(ctx, data)
	if err != nil {
		return nil, err
	}
	if accepted != "" {
		if err := w.poll(ctx, accepted); err != nil {
			return nil, err
		}
		record, err = w.retrieve(ctx, accepted)
		if err != nil {
			return nil, err
		}
		if record == nil {
			record = make(map[string]any, 1)
		}
		// The retrieve body does not always echo the job hash; the
		// extraction record carries it either way.
		record[w.dialect.hashParam] = accepted
	}

	text, _ := record[w.dialect.textKey].(string)
	if err := writeOutput(ctx, w.fs, outputPath, text, record); err != nil {
		return nil, err
	}

	metadata := make(map[string]any, len(record))
	for key, value := range record {
		metadata[key] = value
	}
	for _, key := range textKeys {
		delete(metadata, key)
	}
	return &Result{ExtractedText: text, Metadata: metadata}, nil
}

// submit posts the raw bytes. A 200 carries the extraction inline; a
// 202 returns the job hash for polling.
func (w *whisperer) submit(ctx context.Context, data []byte) (map[string]any, string, error) {
	endpoint := strings.TrimSuffix(w.config.URL, "/") + w.dialect.submitPath +
		"?" + w.submitParams().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, "", sdkerr.Wrap(sdkerr.KindExtractor, "could not build submit request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("unstract-key", w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", sdkerr.New(sdkerr.KindExtractor, connectErrMsg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", sdkerr.Wrap(sdkerr.KindExtractor, "could not read submit response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var record map[string]any
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, "", sdkerr.Wrap(sdkerr.KindExtractor, "malformed extraction response", err)
		}
		return record, "", nil

	case http.StatusAccepted:
		hash := resp.Header.Get(w.dialect.hashParam)
		if hash == "" {
			var accepted map[string]any
			if err := json.Unmarshal(body, &accepted); err == nil {
				hash, _ = accepted[w.dialect.hashParam].(string)
			}
		}
		if hash == "" {
			return nil, "", sdkerr.New(sdkerr.KindExtractor, "whisper hash missing from accepted response")
		}
		return nil, hash, nil

	default:
		return nil, "", whispererHTTPErr(resp.StatusCode, body)
	}
}

// poll waits for a terminal status, tolerating transient status-call
// failures up to the dialect's retry budget.
func (w *whisperer) poll(ctx context.Context, hash string) error {
	retriesLeft := w.dialect.statusRetries
	for attempt := 1; attempt <= w.dialect.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.dialect.pollInterval):
		}

		status, err := w.status(ctx, hash)
		if err != nil {
			if retriesLeft > 0 {
				retriesLeft--
				continue
			}
			return err
		}

		switch strings.ToLower(status) {
		case statusProcessed, statusDelivered:
			return nil
		}
	}
	return sdkerr.Newf(sdkerr.KindExtractor,
		"Whisper client operation timed out after %d polling attempts", w.dialect.maxPolls)
}

func (w *whisperer) status(ctx context.Context, hash string) (string, error) {
	query := url.Values{w.dialect.hashParam: []string{hash}}
	endpoint := strings.TrimSuffix(w.config.URL, "/") + w.dialect.statusPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "could not build status request", err)
	}
	req.Header.Set("unstract-key", w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", sdkerr.New(sdkerr.KindExtractor, connectErrMsg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "could not read status response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", whispererHTTPErr(resp.StatusCode, body)
	}

	var record struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "malformed status response", err)
	}
	return record.Status, nil
}

func (w *whisperer) retrieve(ctx context.Context, hash string) (map[string]any, error) {
	query := url.Values{w.dialect.hashParam: []string{hash}}
	for key, values := range w.dialect.retrieveQuery {
		query[key] = values
	}
	endpoint := strings.TrimSuffix(w.config.URL, "/") + w.dialect.retrievePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindExtractor, "could not build retrieve request", err)
	}
	req.Header.Set("unstract-key", w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, sdkerr.New(sdkerr.KindExtractor, connectErrMsg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindExtractor, "could not read retrieve response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, whispererHTTPErr(resp.StatusCode, body)
	}

	var record map[string]any
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindExtractor, "malformed retrieve response", err)
	}
	return record, nil
}

func (w *whisperer) submitParams() url.Values {
	cfg := w.config
	params := url.Values{}
	set := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}

	set("mode", cfg.Mode)
	set("output_mode", cfg.OutputMode)
	set("line_splitter_strategy", cfg.LineSplitterStrategy)
	set("pages_to_extract", cfg.PagesToExtract)
	set("page_seperator", cfg.PageSeparator)
	set("tag", cfg.Tag)
	set("use_webhook", cfg.UseWebhook)
	set("webhook_metadata", cfg.WebhookMetadata)
	if cfg.LineSplitterTolerance > 0 {
		params.Set("line_splitter_tolerance", strconv.FormatFloat(cfg.LineSplitterTolerance, 'f', -1, 64))
	}
	if cfg.HorizontalStretchFactor > 0 {
		params.Set("horizontal_stretch_factor", strconv.FormatFloat(cfg.HorizontalStretchFactor, 'f', -1, 64))
	}
	if cfg.MarkVerticalLines {
		params.Set("mark_vertical_lines", "true")
	}
	if cfg.MarkHorizontalLines {
		params.Set("mark_horizontal_lines", "true")
	}
	// Filter knobs only apply to the low cost mode.
	if cfg.Mode == "low_cost" {
		if cfg.MedianFilterSize > 0 {
			params.Set("median_filter_size", strconv.Itoa(cfg.MedianFilterSize))
		}
		if cfg.GaussianBlurRadius > 0 {
			params.Set("gaussian_blur_radius", strconv.FormatFloat(cfg.GaussianBlurRadius, 'f', -1, 64))
		}
	}
	return params
}

// whispererHTTPErr surfaces the service's message key when present.
func whispererHTTPErr(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		message = envelope.Message
	}

	e := sdkerr.New(sdkerr.KindExtractor, message)
	e.StatusCode = sdkerr.ResolveStatus(statusCode)
	return e
}
