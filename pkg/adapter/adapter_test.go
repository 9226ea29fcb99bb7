package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	Model   string  `mapstructure:"model" json:"model"`
	Timeout int     `mapstructure:"timeout" json:"timeout,omitempty"`
	TopP    float64 `mapstructure:"top_p" json:"top_p,omitempty"`
}

type fakeAdapter struct {
	info Info
	cfg  fakeConfig
}

func (f *fakeAdapter) Info() Info                   { return f.info }
func (f *fakeAdapter) SchemaJSON() (string, error)  { return SchemaFor(&fakeConfig{}) }
func (f *fakeAdapter) ConfiguredURLs() []string     { return nil }
func (f *fakeAdapter) TestConnection(context.Context) error { return nil }

func fakeRegistration(id string, kind Kind) Registration {
	return Registration{
		Info: Info{ID: id, Name: "Fake", Kind: kind},
		New: func(metadata map[string]any) (Adapter, error) {
			a := &fakeAdapter{info: Info{ID: id, Name: "Fake", Kind: kind}}
			if err := DecodeMetadata(metadata, &a.cfg); err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

func TestFamilyFromID(t *testing.T) {
	info := Info{ID: "openai|6dec9d67-f93f-40c7-8e35-bcf407e13fcd"}
	assert.Equal(t, "openai", info.Family())

	bare := Info{ID: "ollama"}
	assert.Equal(t, "ollama", bare.Family())
}

func TestRegistryResolvesByIDAndFamily(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeRegistration("openai|1111", KindLLM)))

	_, ok := r.Get(KindLLM, "openai|1111")
	assert.True(t, ok)

	_, ok = r.Get(KindLLM, "openai")
	assert.True(t, ok)

	_, ok = r.Get(KindEmbedding, "openai")
	assert.False(t, ok, "kind partitions must not leak")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeRegistration("openai|1111", KindLLM)))
	assert.Error(t, r.Register(fakeRegistration("openai|1111", KindLLM)))
}

func TestBuildDecodesMetadata(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeRegistration("openai|1111", KindLLM)))

	a, err := r.Build(KindLLM, "openai", map[string]any{
		"model":   "gpt-4o-mini",
		"timeout": "45", // weakly typed: string coerces to int
		"top_p":   0.9,
	})
	require.NoError(t, err)

	fake := a.(*fakeAdapter)
	assert.Equal(t, "gpt-4o-mini", fake.cfg.Model)
	assert.Equal(t, 45, fake.cfg.Timeout)
	assert.InDelta(t, 0.9, fake.cfg.TopP, 1e-9)
}

func TestBuildUnknownAdapter(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(KindVectorDB, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no VECTOR_DB adapter registered")
}

func TestSchemaForReflectsFields(t *testing.T) {
	schema, err := SchemaFor(&fakeConfig{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(schema, `"model"`))
	assert.True(t, strings.Contains(schema, `"top_p"`))
}

func TestListDeduplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeRegistration("openai|1111", KindLLM)))
	require.NoError(t, r.Register(fakeRegistration("anthropic|2222", KindLLM)))

	regs := r.List(KindLLM)
	assert.Len(t, regs, 2)
}
