package registry

import (
	"context"
	"testing"
)

const registryTestPrefix = "registry:registry_test"

func syncEcho(_ context.Context, args Args) (any, error) {
	s, _ := args.String(0)
	return s, nil
}

func asyncNoop(_ context.Context, _ Args, done Completion) {
	_ = done.Complete(0)
}

func TestBuilder_RegisterAndLookup(t *testing.T) {
	b := NewBuilder()
	if err := b.Register("test", "echo", SyncFunc(syncEcho), false); err != nil {
		t.Fatalf("%s - Register sync failed: %v", registryTestPrefix, err)
	}
	if err := b.Register("fs", "noop", AsyncFunc(asyncNoop), true); err != nil {
		t.Fatalf("%s - Register async failed: %v", registryTestPrefix, err)
	}
	reg := b.Build()

	e, err := reg.Lookup("test", "echo")
	if err != nil {
		t.Fatalf("%s - Lookup test.echo failed: %v", registryTestPrefix, err)
	}
	if e.IsAsync() {
		t.Errorf("%s - test.echo should be sync", registryTestPrefix)
	}
	if e.Ref() != "test.echo" {
		t.Errorf("%s - Ref = %q, want test.echo", registryTestPrefix, e.Ref())
	}

	e, err = reg.Lookup("fs", "noop")
	if err != nil {
		t.Fatalf("%s - Lookup fs.noop failed: %v", registryTestPrefix, err)
	}
	if !e.IsAsync() {
		t.Errorf("%s - fs.noop should be async", registryTestPrefix)
	}
	if _, ok := e.Capability.(AsyncFunc); !ok {
		t.Errorf("%s - fs.noop capability type = %T, want AsyncFunc", registryTestPrefix, e.Capability)
	}
}

func TestRegistry_LookupMiss(t *testing.T) {
	reg := NewBuilder().Build()

	_, err := reg.Lookup("fs", "missing")
	if err == nil {
		t.Fatalf("%s - expected lookup error", registryTestPrefix)
	}
	if !IsCode(err, CodeLookup) {
		t.Errorf("%s - error = %v, want %s", registryTestPrefix, err, CodeLookup)
	}
}

func TestBuilder_DuplicateIsConfigurationError(t *testing.T) {
	b := NewBuilder()
	if err := b.RegisterSync("test", "echo", syncEcho); err != nil {
		t.Fatalf("%s - first Register failed: %v", registryTestPrefix, err)
	}

	err := b.RegisterSync("test", "echo", func(context.Context, Args) (any, error) { return "shadow", nil })
	if !IsCode(err, CodeConfiguration) {
		t.Fatalf("%s - duplicate error = %v, want %s", registryTestPrefix, err, CodeConfiguration)
	}

	// The original entry must still be the one served.
	reg := b.Build()
	e, _ := reg.Lookup("test", "echo")
	got, _ := e.Capability.(SyncFunc)(context.Background(), Args{"hi"})
	if got != "hi" {
		t.Errorf("%s - duplicate registration shadowed the original (got %v)", registryTestPrefix, got)
	}
}

func TestBuilder_RejectsInvalidRegistrations(t *testing.T) {
	tests := []struct {
		name       string
		namespace  string
		command    string
		capability Capability
		isAsync    bool
	}{
		{"empty namespace", "", "echo", SyncFunc(syncEcho), false},
		{"empty command", "test", "", SyncFunc(syncEcho), false},
		{"nil capability", "test", "echo", nil, false},
		{"nil sync func", "test", "echo", SyncFunc(nil), false},
		{"sync declared async", "test", "echo", SyncFunc(syncEcho), true},
		{"async declared sync", "test", "echo", AsyncFunc(asyncNoop), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBuilder().Register(tt.namespace, tt.command, tt.capability, tt.isAsync)
			if !IsCode(err, CodeConfiguration) {
				t.Errorf("%s - error = %v, want %s", registryTestPrefix, err, CodeConfiguration)
			}
		})
	}
}

func TestBuilder_WriteOnceAfterBuild(t *testing.T) {
	b := NewBuilder()
	reg := b.Build()

	err := b.RegisterSync("test", "late", syncEcho)
	if !IsCode(err, CodeConfiguration) {
		t.Fatalf("%s - late Register error = %v, want %s", registryTestPrefix, err, CodeConfiguration)
	}
	if _, err := reg.Lookup("test", "late"); err == nil {
		t.Errorf("%s - registry mutated after Build", registryTestPrefix)
	}
}

func TestBuilder_FilterSkipsDisabled(t *testing.T) {
	b := NewBuilder().WithFilter(func(namespace, command string) bool {
		return !(namespace == "fs" && command == "unlink")
	})
	if err := b.RegisterAsync("fs", "unlink", asyncNoop); err != nil {
		t.Fatalf("%s - filtered Register should not fail: %v", registryTestPrefix, err)
	}
	if err := b.RegisterAsync("fs", "stat", asyncNoop); err != nil {
		t.Fatalf("%s - Register fs.stat failed: %v", registryTestPrefix, err)
	}
	if err := b.RegisterAsync("fs", "unlink", asyncNoop); !IsCode(err, CodeConfiguration) {
		t.Errorf("%s - duplicate of a filtered entry should still fail, got %v", registryTestPrefix, err)
	}

	reg := b.Build()
	if reg.Len() != 1 {
		t.Fatalf("%s - Len = %d, want 1", registryTestPrefix, reg.Len())
	}
	if _, err := reg.Lookup("fs", "unlink"); !IsCode(err, CodeLookup) {
		t.Errorf("%s - disabled capability should not resolve, got %v", registryTestPrefix, err)
	}
}

type testModule struct{ command string }

func (m testModule) Register(b *Builder) error {
	return b.RegisterSync("mod", m.command, syncEcho)
}

func TestBuilder_Install(t *testing.T) {
	b := NewBuilder()
	if err := b.Install(testModule{"a"}, testModule{"b"}); err != nil {
		t.Fatalf("%s - Install failed: %v", registryTestPrefix, err)
	}
	if err := b.Install(testModule{"a"}); !IsCode(err, CodeConfiguration) {
		t.Errorf("%s - re-installing a module should fail, got %v", registryTestPrefix, err)
	}

	list := b.Build().List()
	if len(list) != 2 {
		t.Fatalf("%s - List len = %d, want 2", registryTestPrefix, len(list))
	}
	if list[0].Command != "a" || list[1].Command != "b" {
		t.Errorf("%s - List not sorted: %+v", registryTestPrefix, list)
	}
	if list[0].Variant != "sync" {
		t.Errorf("%s - Variant = %q, want sync", registryTestPrefix, list[0].Variant)
	}
}
