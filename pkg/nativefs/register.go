package nativefs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/morezero/native-bridge/pkg/registry"
)

// Namespace is the registry namespace of the file-system commands.
const Namespace = "fs"

// Register installs the fs commands. showOpenDialog is registered only when a Dialog is configured.
func (b *Bridge) Register(builder *registry.Builder) error {
	commands := []struct {
		name string
		fn   registry.AsyncFunc
	}{
		{"readdir", b.readdir},
		{"stat", b.stat},
		{"readFile", b.readFile},
		{"writeFile", b.writeFile},
		{"chmod", b.chmod},
		{"unlink", b.unlink},
	}
	if b.dialog != nil {
		commands = append(commands, struct {
			name string
			fn   registry.AsyncFunc
		}{"showOpenDialog", b.showOpenDialog})
	}

	for _, c := range commands {
		if err := builder.RegisterAsync(Namespace, c.name, c.fn); err != nil {
			return fmt.Errorf("%s - %w", logPrefix, err)
		}
	}
	return nil
}

// complete runs work off the dispatch goroutine and reports its result through done.
func (b *Bridge) complete(command string, done registry.Completion, work func() []any) {
	go func() {
		result := work()
		if b.delay > 0 {
			time.Sleep(b.delay)
		}
		if err := done.Complete(result...); err != nil {
			slog.Warn(fmt.Sprintf("%s - %s completion: %v", logPrefix, command, err))
		}
	}()
}

func outcome(command string, err error, mode access) int {
	code := codeFor(err, mode)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - %s failed with code %d: %v (cause: %v)", logPrefix, command, code, err, errors.Cause(err)))
	}
	return code
}

func (b *Bridge) readdir(_ context.Context, args registry.Args, done registry.Completion) {
	path, ok := args.String(0)
	b.complete("readdir", done, func() []any {
		if !ok {
			return []any{ErrInvalidParams, []string{}}
		}
		names, err := b.ReadDir(path)
		if err != nil {
			return []any{outcome("readdir", err, reading), []string{}}
		}
		return []any{NoError, names}
	})
}

func (b *Bridge) stat(_ context.Context, args registry.Args, done registry.Completion) {
	path, ok := args.String(0)
	b.complete("stat", done, func() []any {
		if !ok {
			return []any{ErrInvalidParams, nil}
		}
		st, err := b.Stat(path)
		if err != nil {
			return []any{outcome("stat", err, reading), nil}
		}
		return []any{NoError, st}
	})
}

func (b *Bridge) readFile(_ context.Context, args registry.Args, done registry.Completion) {
	path, okPath := args.String(0)
	encoding, okEnc := args.String(1)
	b.complete("readFile", done, func() []any {
		if !okPath || !okEnc {
			return []any{ErrInvalidParams, ""}
		}
		contents, err := b.ReadFile(path, encoding)
		if err != nil {
			return []any{outcome("readFile", err, reading), ""}
		}
		return []any{NoError, contents}
	})
}

func (b *Bridge) writeFile(_ context.Context, args registry.Args, done registry.Completion) {
	path, okPath := args.String(0)
	data, okData := args.String(1)
	encoding, okEnc := args.String(2)
	b.complete("writeFile", done, func() []any {
		if !okPath || !okData || !okEnc {
			return []any{ErrInvalidParams}
		}
		return []any{outcome("writeFile", b.WriteFile(path, data, encoding), writing)}
	})
}

func (b *Bridge) chmod(_ context.Context, args registry.Args, done registry.Completion) {
	path, okPath := args.String(0)
	mode, okMode := args.Int(1)
	b.complete("chmod", done, func() []any {
		if !okPath || !okMode {
			return []any{ErrInvalidParams}
		}
		return []any{outcome("chmod", b.Chmod(path, mode), writing)}
	})
}

func (b *Bridge) unlink(_ context.Context, args registry.Args, done registry.Completion) {
	path, ok := args.String(0)
	b.complete("unlink", done, func() []any {
		if !ok {
			return []any{ErrInvalidParams}
		}
		return []any{outcome("unlink", b.Unlink(path), writing)}
	})
}

func (b *Bridge) showOpenDialog(ctx context.Context, args registry.Args, done registry.Completion) {
	allowMultiple, _ := args.Bool(0)
	chooseDirectory, _ := args.Bool(1)
	title, _ := args.String(2)
	initialPath, _ := args.String(3)
	fileTypes, okTypes := args.Strings(4)
	if !okTypes && !args.IsNull(4) {
		b.complete("showOpenDialog", done, func() []any { return []any{ErrInvalidParams, []string{}} })
		return
	}

	req := DialogRequest{
		AllowMultiple:   allowMultiple,
		ChooseDirectory: chooseDirectory,
		Title:           title,
		InitialPath:     initialPath,
		FileTypes:       fileTypes,
	}
	b.complete("showOpenDialog", done, func() []any {
		selection, err := b.ShowOpenDialog(ctx, req)
		if err != nil {
			return []any{outcome("showOpenDialog", err, reading), []string{}}
		}
		return []any{NoError, selection}
	})
}
