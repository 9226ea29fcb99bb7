package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

const (
	vertexDefaultLocation  = "us-central1"
	vertexDefaultThreshold = "BLOCK_ONLY_HIGH"
	vertexCloudScope       = "https://www.googleapis.com/auth/cloud-platform"
)

var vertexInfo = adapter.Info{
	ID:          "vertexai|78fa17a5-a619-47d4-ac6e-3fc773f90e5d",
	Name:        "VertexAI",
	Kind:        adapter.KindLLM,
	Description: "Gemini models on Google Vertex AI",
	Icon:        "/icons/adapter-icons/VertexAI.png",
}

// VertexConfig extends the shared shell config with Vertex specifics.
// Credentials carry a service account key as a JSON string and safety
// settings map named harm categories to a HarmBlockThreshold.
type VertexConfig struct {
	Config         `mapstructure:",squash"`
	Project        string            `json:"project" mapstructure:"project"`
	Location       string            `json:"location" mapstructure:"location"`
	Credentials    string            `json:"json_credentials" mapstructure:"json_credentials"`
	SafetySettings map[string]string `json:"safety_settings" mapstructure:"safety_settings"`
}

// Vertex implements the LLM shell on top of the Vertex AI Gemini API.
type Vertex struct {
	config   VertexConfig
	client   *genai.Client
	listener UsageListener
}

// NewVertex constructs the shell from adapter metadata.
func NewVertex(metadata map[string]any) (adapter.Adapter, error) {
	var cfg VertexConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewVertexFromConfig(cfg)
}

// NewVertexFromConfig constructs the shell from a typed config.
func NewVertexFromConfig(cfg VertexConfig) (*Vertex, error) {
	cfg.SetDefaults()
	if cfg.Location == "" {
		cfg.Location = vertexDefaultLocation
	}
	if cfg.Project == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Vertex AI project is required")
	}
	if cfg.Model == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Vertex AI model is required")
	}
	if cfg.Credentials == "" {
		return nil, sdkerr.New(sdkerr.KindAdapter, "Vertex AI service account credentials are required")
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.Credentials),
		Scopes:          []string{vertexCloudScope},
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindAdapter, "invalid Vertex AI credentials", err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.Project,
		Location:    cfg.Location,
		Credentials: creds,
	})
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindAdapter, "failed to create Vertex AI client", err)
	}

	return &Vertex{config: cfg, client: client}, nil
}

func (v *Vertex) Info() adapter.Info { return vertexInfo }

func (v *Vertex) SchemaJSON() (string, error) { return adapter.SchemaFor(&VertexConfig{}) }

func (v *Vertex) ConfiguredURLs() []string { return nil }

func (v *Vertex) Model() string { return v.config.Model }

func (v *Vertex) SetUsageListener(l UsageListener) { v.listener = l }

func (v *Vertex) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, v)
}

func (v *Vertex) Complete(ctx context.Context, prompt string) (*Completion, error) {
	config := &genai.GenerateContentConfig{
		SafetySettings: v.safetySettings(),
	}
	if temp, ok := v.config.EffectiveTemperature(); ok {
		config.Temperature = genai.Ptr(float32(temp))
	}
	if v.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(v.config.MaxTokens)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	resp, err := v.client.Models.GenerateContent(ctx, v.config.Model, contents, config)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindLLM, "Vertex AI generation failed", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, sdkerr.New(sdkerr.KindLLM, "no completion candidates returned")
	}

	candidate := resp.Candidates[0]
	if err := vertexFinishErr(candidate.FinishReason); err != nil {
		return nil, err
	}

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, sdkerr.New(sdkerr.KindLLM, "no completion text returned")
	}

	completion := &Completion{Text: text.String()}
	if resp.UsageMetadata != nil {
		completion.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	emitUsage(ctx, v.listener, "vertexai", v.config.Model, completion.Usage)
	return completion, nil
}

// safetySettings converts the configured category map to the API form.
// Unset categories fall back to BLOCK_ONLY_HIGH.
func (v *Vertex) safetySettings() []*genai.SafetySetting {
	categories := map[string]genai.HarmCategory{
		"dangerous_content": genai.HarmCategoryDangerousContent,
		"hate_speech":       genai.HarmCategoryHateSpeech,
		"harassment":        genai.HarmCategoryHarassment,
		"sexual_content":    genai.HarmCategorySexuallyExplicit,
		"other":             genai.HarmCategoryUnspecified,
	}

	settings := make([]*genai.SafetySetting, 0, len(categories))
	for key, category := range categories {
		threshold := vertexDefaultThreshold
		if configured, ok := v.config.SafetySettings[key]; ok && configured != "" {
			threshold = configured
		}
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThreshold(threshold),
		})
	}
	return settings
}

// vertexFinishErr maps a terminal finish reason to a taxonomy error.
func vertexFinishErr(reason genai.FinishReason) error {
	switch reason {
	case "", genai.FinishReasonStop:
		return nil
	case genai.FinishReasonMaxTokens:
		e := sdkerr.New(sdkerr.KindLLM,
			"the token limit was reached before the model could finish, raise max tokens or shorten the prompt")
		e.StatusCode = http.StatusTooManyRequests
		return e
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII:
		e := sdkerr.New(sdkerr.KindLLM,
			fmt.Sprintf("the response was blocked by Vertex AI content filters (%s)", reason))
		e.StatusCode = http.StatusForbidden
		return e
	default:
		e := sdkerr.New(sdkerr.KindLLM,
			fmt.Sprintf("generation stopped unexpectedly (%s)", reason))
		e.StatusCode = http.StatusBadGateway
		return e
	}
}

var _ LLM = (*Vertex)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: vertexInfo, New: NewVertex})
}
