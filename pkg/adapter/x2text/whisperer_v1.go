package x2text

import (
	"net/url"
	"time"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
)

var whispererV1Info = adapter.Info{
	ID:          "llmwhisperer|0a1647f0-f65f-410d-843b-3d979c78350e",
	Name:        "LLMWhisperer",
	Kind:        adapter.KindX2Text,
	Description: "Layout preserving text extraction, v1 wire dialect",
	Icon:        "/icons/adapter-icons/LLMWhispererV2.png",
}

// WhispererV1 speaks the v1 wire dialect: the job hash arrives in the
// whisper-hash response header and status failures are not retried.
type WhispererV1 struct {
	*whisperer
}

// NewWhispererV1 constructs the extractor from adapter metadata.
func NewWhispererV1(metadata map[string]any) (adapter.Adapter, error) {
	var cfg WhispererConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewWhispererV1FromConfig(cfg)
}

// NewWhispererV1FromConfig constructs the extractor from a typed config.
func NewWhispererV1FromConfig(cfg WhispererConfig) (*WhispererV1, error) {
	core, err := newWhisperer(whispererV1Info, cfg, dialect{
		submitPath:    "/v1/whisper",
		statusPath:    "/v1/whisper-status",
		retrievePath:  "/v1/whisper-retrieve",
		hashParam:     "whisper-hash",
		textKey:       "text",
		retrieveQuery: url.Values{"output_json": []string{"true"}},
		pollInterval:  time.Duration(envInt(EnvPollInterval, defaultPollSeconds)) * time.Second,
		maxPolls:      envInt(EnvMaxPolls, defaultMaxPolls),
		statusRetries: 0,
	})
	if err != nil {
		return nil, err
	}
	return &WhispererV1{whisperer: core}, nil
}

var _ X2Text = (*WhispererV1)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: whispererV1Info, New: NewWhispererV1})
}
