// Package bootstrap loads the capability manifest that decides which capabilities a bridge exposes.
package bootstrap

import (
	"github.com/morezero/native-bridge/pkg/semver"
)

// Manifest is the root manifest document. It may be written as JSON or YAML.
type Manifest struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// RequiresBridge is a semver constraint the running bridge version must satisfy.
	RequiresBridge string `json:"requiresBridge,omitempty" yaml:"requiresBridge,omitempty"`
	// Disabled lists "namespace.command" or "namespace.*" refs that are never registered.
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ResolvedManifest is a validated Manifest ready to filter registrations.
type ResolvedManifest struct {
	name     string
	version  string
	disabled []*semver.CapabilityRef
}

// Allows reports whether (namespace, command) may be registered. It matches the registry builder filter signature.
func (rm *ResolvedManifest) Allows(namespace, command string) bool {
	for _, ref := range rm.disabled {
		if ref.Matches(namespace, command) {
			return false
		}
	}
	return true
}

// Name returns the manifest name.
func (rm *ResolvedManifest) Name() string {
	return rm.name
}

// Version returns the manifest version.
func (rm *ResolvedManifest) Version() string {
	return rm.version
}

// Disabled returns the canonical disabled refs.
func (rm *ResolvedManifest) Disabled() []string {
	out := make([]string, len(rm.disabled))
	for i, ref := range rm.disabled {
		out[i] = ref.String()
	}
	return out
}
