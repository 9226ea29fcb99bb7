// Package adapter defines the uniform plug-in contract shared by every
// provider family: LLMs, embedders, vector stores, text extractors, and
// OCR. Each provider registers a constructor and metadata; instantiation
// decodes the opaque adapter configuration and performs at most one URL
// egress validation pass, never any other side effect.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/Zipstack/unstract-sdk-go/pkg/egress"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// Kind is the adapter capability family.
type Kind string

const (
	KindLLM       Kind = "LLM"
	KindEmbedding Kind = "EMBEDDING"
	KindVectorDB  Kind = "VECTOR_DB"
	KindX2Text    Kind = "X2TEXT"
	KindOCR       Kind = "OCR"
)

// Info identifies and describes a registered adapter implementation.
type Info struct {
	// ID is the stable adapter id, "family|uuid".
	ID string

	// Name is the human-readable provider name.
	Name string

	// Kind is the capability family.
	Kind Kind

	// Description summarizes the provider.
	Description string

	// Icon is an SVG string or icon path.
	Icon string
}

// Family returns the provider family encoded in the adapter id.
func (i Info) Family() string {
	for idx := 0; idx < len(i.ID); idx++ {
		if i.ID[idx] == '|' {
			return i.ID[:idx]
		}
	}
	return i.ID
}

// Adapter is the capability set every provider implements.
type Adapter interface {
	// Info returns the adapter identity and description.
	Info() Info

	// SchemaJSON returns the JSON schema of the adapter configuration.
	SchemaJSON() (string, error)

	// ConfiguredURLs lists every URL the adapter will contact. All of
	// them must pass egress validation before any socket is opened.
	ConfiguredURLs() []string

	// TestConnection verifies the configuration end to end.
	TestConnection(ctx context.Context) error
}

// DecodeMetadata decodes the opaque adapter metadata into a typed config
// struct. Numeric strings and ints coerce loosely since the platform
// stores metadata as JSON.
func DecodeMetadata(metadata map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindAdapter, "could not build metadata decoder", err)
	}
	if err := decoder.Decode(metadata); err != nil {
		return sdkerr.Wrap(sdkerr.KindAdapter, "invalid adapter metadata", err)
	}
	return nil
}

// SchemaFor reflects the JSON schema of a config struct.
func SchemaFor(config any) (string, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(config)
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindAdapter, "could not marshal adapter schema", err)
	}
	return string(data), nil
}

// ValidateEgress runs every configured URL of the adapter through the
// validator. Call once at construction time.
func ValidateEgress(validator *egress.Validator, a Adapter) error {
	if validator == nil {
		return nil
	}
	return validator.ValidateAll(a.ConfiguredURLs())
}
