package bootstrap

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()
	rm, err := Resolve(m)
	if err != nil {
		t.Fatalf("expected default manifest to resolve, got %v", err)
	}
	if !rm.Allows("fs", "unlink") || !rm.Allows("app", "quit") {
		t.Error("expected default manifest to allow everything")
	}
}

func TestLoadManifest_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `name: editor-shell
version: 2.1.0
requiresBridge: ">=1.0.0, <2.0.0"
disabled:
  - fs.unlink
  - app.*
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "editor-shell" || m.Version != "2.1.0" {
		t.Errorf("expected editor-shell@2.1.0, got %s@%s", m.Name, m.Version)
	}

	rm, err := Resolve(m)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if rm.Allows("fs", "unlink") || rm.Allows("app", "quit") {
		t.Error("expected fs.unlink and app.* to be disabled")
	}
	if !rm.Allows("fs", "stat") || !rm.Allows("test", "reverse") {
		t.Error("expected other capabilities to stay enabled")
	}
	if !reflect.DeepEqual(rm.Disabled(), []string{"fs.unlink", "app.*"}) {
		t.Errorf("unexpected disabled list %v", rm.Disabled())
	}
}

func TestLoadManifest_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.json")
	content := `{"name": "ci", "version": "1.0.0", "disabled": ["fs.showOpenDialog"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Disabled) != 1 || m.Disabled[0] != "fs.showOpenDialog" {
		t.Errorf("unexpected disabled list %v", m.Disabled)
	}
}

func TestLoadManifest_MissingFallsBackToDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != DefaultManifest().Name {
		t.Errorf("expected default manifest, got %s", m.Name)
	}
}

func TestLoadManifest_InvalidFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.json")
	if err := os.WriteFile(path, []byte(`{"name": `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
	}{
		{name: "unsatisfied bridge version", manifest: &Manifest{Name: "m", RequiresBridge: "^2.0.0"}},
		{name: "invalid constraint", manifest: &Manifest{Name: "m", RequiresBridge: "latest please"}},
		{name: "invalid version", manifest: &Manifest{Name: "m", Version: "v-one"}},
		{name: "invalid disabled ref", manifest: &Manifest{Name: "m", Disabled: []string{"unlink"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.manifest); err == nil {
				t.Error("expected error")
			}
		})
	}
}
