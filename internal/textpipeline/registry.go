package textpipeline

import (
	"fmt"
	"sync"
)

// Factory builds a fresh Stage instance.
type Factory func() Stage

type registryEntry struct {
	name    string
	factory Factory
}

// RegisterOptions controls where a stage lands relative to already
// registered stages, and whether re-registering an existing name is
// allowed.
type RegisterOptions struct {
	Before  string
	After   string
	Replace bool
}

// Registry is an explicit, instance-owned stage registry. It is
// constructed at container-init time and wired into whatever needs text
// normalization; there is no process-wide singleton.
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
	version int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds factory under name. Registering an already-used name
// without Replace set returns an error. Before/After (at most one used meaningfully; if
// both given, Before takes precedence) insert the stage next to an
// existing named entry; if neither is found or given, the stage is
// appended. Every successful call advances the registry's version.
func (r *Registry) Register(name string, factory Factory, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfLocked(name)
	if idx >= 0 && !opts.Replace {
		return fmt.Errorf("textpipeline: stage %q already registered", name)
	}

	entry := registryEntry{name: name, factory: factory}

	if idx >= 0 {
		r.entries[idx] = entry
		r.version++
		return nil
	}

	switch {
	case opts.Before != "":
		at := r.indexOfLocked(opts.Before)
		if at < 0 {
			r.entries = append(r.entries, entry)
		} else {
			r.entries = insertAt(r.entries, at, entry)
		}
	case opts.After != "":
		at := r.indexOfLocked(opts.After)
		if at < 0 {
			r.entries = append(r.entries, entry)
		} else {
			r.entries = insertAt(r.entries, at+1, entry)
		}
	default:
		r.entries = append(r.entries, entry)
	}
	r.version++
	return nil
}

func insertAt(entries []registryEntry, at int, entry registryEntry) []registryEntry {
	out := make([]registryEntry, 0, len(entries)+1)
	out = append(out, entries[:at]...)
	out = append(out, entry)
	out = append(out, entries[at:]...)
	return out
}

func (r *Registry) indexOfLocked(name string) int {
	for i, e := range r.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

// ListStageNames returns the registered stage names in order.
func (r *Registry) ListStageNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Version returns the current registration version, incremented on every
// successful Register call.
func (r *Registry) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// CreatePipeline builds a Pipeline from the registry's current factories in
// order. If overrides is non-nil, it bypasses the registry entirely and
// builds a Pipeline from that explicit stage list instead.
func (r *Registry) CreatePipeline(overrides []Stage) *Pipeline {
	if overrides != nil {
		return NewPipeline(overrides)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stages := make([]Stage, len(r.entries))
	for i, e := range r.entries {
		stages[i] = e.factory()
	}
	return NewPipeline(stages)
}

// Builder memoizes the default pipeline, rebuilding it only when the
// registry's version advances. It is owned by the container, not shared as
// global state.
type Builder struct {
	registry *Registry

	mu             sync.Mutex
	cachedVersion  int
	cachedPipeline *Pipeline
	hasCache       bool
}

// NewBuilder wraps registry in a memoizing builder.
func NewBuilder(registry *Registry) *Builder {
	return &Builder{registry: registry}
}

// Default returns the registry's default pipeline, rebuilding it only if
// the registry version has advanced since the last call.
func (b *Builder) Default() *Pipeline {
	version := b.registry.Version()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasCache && b.cachedVersion == version {
		return b.cachedPipeline
	}
	b.cachedPipeline = b.registry.CreatePipeline(nil)
	b.cachedVersion = version
	b.hasCache = true
	return b.cachedPipeline
}

// WithStages builds a pipeline from an explicit stage list, bypassing the
// registry.
func (b *Builder) WithStages(stages []Stage) *Pipeline {
	return b.registry.CreatePipeline(stages)
}
