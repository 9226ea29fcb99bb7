package adapter

import (
	"fmt"
	"sync"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// Constructor builds an adapter from its opaque configuration metadata.
type Constructor func(metadata map[string]any) (Adapter, error)

// Registration pairs adapter metadata with its constructor.
type Registration struct {
	Info Info
	New  Constructor
}

// Registry maps adapter ids to registrations, partitioned by kind.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]map[string]Registration)}
}

// Register adds an adapter registration. Both the full adapter id and the
// bare family name resolve to it.
func (r *Registry) Register(reg Registration) error {
	if reg.Info.ID == "" {
		return fmt.Errorf("adapter id cannot be empty")
	}
	if reg.New == nil {
		return fmt.Errorf("adapter %s has no constructor", reg.Info.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kindEntries, ok := r.entries[reg.Info.Kind]
	if !ok {
		kindEntries = make(map[string]Registration)
		r.entries[reg.Info.Kind] = kindEntries
	}
	if _, exists := kindEntries[reg.Info.ID]; exists {
		return fmt.Errorf("adapter %s already registered", reg.Info.ID)
	}
	kindEntries[reg.Info.ID] = reg
	kindEntries[reg.Info.Family()] = reg
	return nil
}

// Get resolves a registration by adapter id or family name.
func (r *Registry) Get(kind Kind, id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kindEntries, ok := r.entries[kind]
	if !ok {
		return Registration{}, false
	}
	reg, ok := kindEntries[id]
	if !ok {
		reg, ok = kindEntries[Info{ID: id}.Family()]
	}
	return reg, ok
}

// Build constructs an adapter of the given kind from its id and metadata.
func (r *Registry) Build(kind Kind, id string, metadata map[string]any) (Adapter, error) {
	reg, ok := r.Get(kind, id)
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindAdapter, "no %s adapter registered for %q", kind, id)
	}
	a, err := reg.New(metadata)
	if err != nil {
		if _, typed := sdkerr.AsError(err); typed {
			return nil, err
		}
		return nil, sdkerr.Wrap(sdkerr.KindAdapter,
			fmt.Sprintf("could not construct %s adapter %q", kind, id), err)
	}
	return a, nil
}

// List returns every distinct registration of a kind.
func (r *Registry) List(kind Kind) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var regs []Registration
	for _, reg := range r.entries[kind] {
		if seen[reg.Info.ID] {
			continue
		}
		seen[reg.Info.ID] = true
		regs = append(regs, reg)
	}
	return regs
}

// defaultRegistry holds the process-wide registrations made by provider
// packages in their init functions.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// MustRegister registers into the default registry and panics on
// conflict. Intended for provider package init functions.
func MustRegister(reg Registration) {
	if err := defaultRegistry.Register(reg); err != nil {
		panic(err)
	}
}
