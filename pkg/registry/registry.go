package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

const logPrefix = "registry:registry"

type key struct {
	namespace string
	command   string
}

// Module is a group of capabilities that registers itself on a Builder.
type Module interface {
	Register(b *Builder) error
}

// Builder collects capabilities during startup. It produces exactly one Registry.
type Builder struct {
	entries map[key]*Entry
	skipped map[key]struct{}
	filter  func(namespace, command string) bool
	built   bool
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		entries: make(map[key]*Entry),
		skipped: make(map[key]struct{}),
	}
}

// WithFilter installs a predicate deciding which capabilities are enabled.
// Capabilities it rejects are skipped without error.
func (b *Builder) WithFilter(filter func(namespace, command string) bool) *Builder {
	b.filter = filter
	return b
}

// Register adds a capability under (namespace, command).
// isAsync must agree with the capability's variant. A duplicate pair is a configuration error.
func (b *Builder) Register(namespace, command string, capability Capability, isAsync bool) error {
	if b.built {
		return configError("registry already built; cannot register %s.%s", namespace, command)
	}
	if namespace == "" || command == "" {
		return configError("namespace and command are required (got %q, %q)", namespace, command)
	}
	if capability == nil || isNilFunc(capability) {
		return configError("capability %s.%s has no function", namespace, command)
	}

	variant := capability.variant()
	if (variant == VariantAsync) != isAsync {
		return configError("capability %s.%s is %s but was registered with isAsync=%t", namespace, command, variant, isAsync)
	}

	k := key{namespace: namespace, command: command}
	_, exists := b.entries[k]
	_, skipped := b.skipped[k]
	if exists || skipped {
		return configError("capability %s.%s already registered", namespace, command)
	}

	if b.filter != nil && !b.filter(namespace, command) {
		b.skipped[k] = struct{}{}
		slog.Debug(fmt.Sprintf("%s - Skipping disabled capability %s.%s", logPrefix, namespace, command))
		return nil
	}

	slog.Debug(fmt.Sprintf("%s - Registering %s capability %s.%s", logPrefix, variant, namespace, command))
	b.entries[k] = &Entry{
		Namespace:  namespace,
		Command:    command,
		Variant:    variant,
		Capability: capability,
	}
	return nil
}

// RegisterSync registers a synchronous capability.
func (b *Builder) RegisterSync(namespace, command string, fn SyncFunc) error {
	return b.Register(namespace, command, fn, false)
}

// RegisterAsync registers an asynchronous capability.
func (b *Builder) RegisterAsync(namespace, command string, fn AsyncFunc) error {
	return b.Register(namespace, command, fn, true)
}

// Install registers every module in order, stopping at the first error.
func (b *Builder) Install(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(b); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the immutable Registry. The Builder accepts no registrations afterwards.
func (b *Builder) Build() *Registry {
	b.built = true

	entries := make(map[key]*Entry, len(b.entries))
	sorted := make([]*Entry, 0, len(b.entries))
	for k, e := range b.entries {
		entries[k] = e
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Ref() < sorted[j].Ref()
	})

	slog.Info(fmt.Sprintf("%s - Registry built with %d capabilities", logPrefix, len(sorted)))
	return &Registry{entries: entries, sorted: sorted}
}

// Registry maps (namespace, command) to a capability. It is never mutated after Build.
type Registry struct {
	entries map[key]*Entry
	sorted  []*Entry
}

// Lookup resolves a capability. A miss returns a LOOKUP_ERROR RegistryError.
func (r *Registry) Lookup(namespace, command string) (*Entry, error) {
	e, ok := r.entries[key{namespace: namespace, command: command}]
	if !ok {
		return nil, NewRegistryError(CodeLookup, fmt.Sprintf("no capability registered for %s.%s", namespace, command))
	}
	return e, nil
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.sorted)
}

// List returns the registered capabilities sorted by reference.
func (r *Registry) List() []EntryInfo {
	out := make([]EntryInfo, 0, len(r.sorted))
	for _, e := range r.sorted {
		out = append(out, EntryInfo{
			Namespace: e.Namespace,
			Command:   e.Command,
			Variant:   e.Variant.String(),
		})
	}
	return out
}

func configError(format string, args ...any) *RegistryError {
	return &RegistryError{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

func isNilFunc(c Capability) bool {
	switch fn := c.(type) {
	case SyncFunc:
		return fn == nil
	case AsyncFunc:
		return fn == nil
	}
	return false
}
