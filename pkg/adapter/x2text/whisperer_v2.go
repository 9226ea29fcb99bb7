package x2text

import (
	"net/url"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
)

var whispererV2Info = adapter.Info{
	ID:          "llmwhispererV2|a9e8b52f-4b2f-489e-9d5c-f0d4f9b26b5b",
	Name:        "LLMWhisperer V2",
	Kind:        adapter.KindX2Text,
	Description: "Layout preserving text extraction, v2 wire dialect",
	Icon:        "/icons/adapter-icons/LLMWhispererV2.png",
}

// WhispererV2 speaks the v2 wire dialect: the job hash arrives in the
// response body and transient status failures are retried up to a
// budget.
type WhispererV2 struct {
	*whisperer
}

// NewWhispererV2 constructs the extractor from adapter metadata.
func NewWhispererV2(metadata map[string]any) (adapter.Adapter, error) {
	var cfg WhispererConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewWhispererV2FromConfig(cfg)
}

// NewWhispererV2FromConfig constructs the extractor from a typed config.
func NewWhispererV2FromConfig(cfg WhispererConfig) (*WhispererV2, error) {
	core, err := newWhisperer(whispererV2Info, cfg, dialect{
		submitPath:    "/api/v2/whisper",
		statusPath:    "/api/v2/whisper-status",
		retrievePath:  "/api/v2/whisper-retrieve",
		hashParam:     "whisper_hash",
		textKey:       "result_text",
		retrieveQuery: url.Values{"text_only": []string{"false"}},
		pollInterval:  time.Duration(envInt(EnvPollIntervalV2, defaultPollSeconds)) * time.Second,
		maxPolls:      envInt(EnvMaxPollsV2, defaultMaxPolls),
		statusRetries: envInt(EnvStatusRetries, defaultRetries),
	})
	if err != nil {
		return nil, err
	}
	return &WhispererV2{whisperer: core}, nil
}

var _ X2Text = (*WhispererV2)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: whispererV2Info, New: NewWhispererV2})
}
