package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/native-bridge/pkg/semver"
)

const logPrefix = "bootstrap:loader"

// BridgeVersion is checked against a manifest's requiresBridge constraint.
const BridgeVersion = "1.0.0"

// DefaultManifestPaths are tried after any explicit path.
var DefaultManifestPaths = []string{"config/bridge.yaml", "config/bridge.json", "bridge.yaml", "bridge.json"}

// LoadManifest loads the first manifest found. Explicit paths are tried before the defaults.
// A missing file is skipped; a file that exists but cannot be parsed is an error.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+len(DefaultManifestPaths))
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	all = append(all, DefaultManifestPaths...)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read manifest %s: %w", logPrefix, p, err)
		}

		m, err := ParseManifest(data, formatOf(p))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to parse manifest %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest %s@%s from %s", logPrefix, m.Name, m.Version, p))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", logPrefix))
	return DefaultManifest(), nil
}

// ParseManifest decodes a manifest. format is "yaml" or "json".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	case "json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	return &m, nil
}

// DefaultManifest enables every capability.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:           "native-bridge",
		Version:        "1.0.0",
		Description:    "Default manifest exposing every registered capability",
		RequiresBridge: "^1.0.0",
	}
}

// Resolve validates m against the running bridge version and parses its disabled refs.
func Resolve(m *Manifest) (*ResolvedManifest, error) {
	if err := semver.CheckConstraint(m.RequiresBridge, BridgeVersion); err != nil {
		return nil, fmt.Errorf("%s - manifest %s: %w", logPrefix, m.Name, err)
	}
	if m.Version != "" && !semver.ValidateVersion(m.Version) {
		return nil, fmt.Errorf("%s - manifest %s has invalid version %q", logPrefix, m.Name, m.Version)
	}

	disabled := make([]*semver.CapabilityRef, 0, len(m.Disabled))
	for _, raw := range m.Disabled {
		ref, err := semver.ParseCapabilityRef(raw)
		if err != nil {
			return nil, fmt.Errorf("%s - manifest %s: %w", logPrefix, m.Name, err)
		}
		disabled = append(disabled, ref)
	}

	return &ResolvedManifest{name: m.Name, version: m.Version, disabled: disabled}, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
