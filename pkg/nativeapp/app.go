// Package nativeapp provides the app namespace (process lifetime) and the test namespace
// used to check a bridge connection end to end.
package nativeapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/native-bridge/pkg/registry"
)

const logPrefix = "nativeapp:app"

const (
	AppNamespace  = "app"
	TestNamespace = "test"
)

// Options configures App.
type Options struct {
	// Start is the reference instant for getElapsedMilliseconds. Defaults to New's call time.
	Start time.Time
	// Quit is called by app.quit. It must not block.
	Quit func()
	// Now overrides the clock.
	Now func() time.Time
}

// App implements the app and test namespaces.
type App struct {
	start time.Time
	quit  func()
	now   func() time.Time
}

// New creates an App. Pass nil for opts to use defaults.
func New(opts *Options) *App {
	a := &App{now: time.Now}
	if opts != nil {
		a.start = opts.Start
		a.quit = opts.Quit
		if opts.Now != nil {
			a.now = opts.Now
		}
	}
	if a.start.IsZero() {
		a.start = a.now()
	}
	return a
}

// Register installs app.getElapsedMilliseconds, app.quit and test.reverse.
func (a *App) Register(b *registry.Builder) error {
	if err := b.RegisterSync(AppNamespace, "getElapsedMilliseconds", a.elapsed); err != nil {
		return err
	}
	if err := b.RegisterSync(AppNamespace, "quit", a.requestQuit); err != nil {
		return err
	}
	return b.RegisterSync(TestNamespace, "reverse", reverse)
}

// ElapsedMilliseconds returns the time since start.
func (a *App) ElapsedMilliseconds() int64 {
	return a.now().Sub(a.start).Milliseconds()
}

func (a *App) elapsed(context.Context, registry.Args) (any, error) {
	return a.ElapsedMilliseconds(), nil
}

func (a *App) requestQuit(context.Context, registry.Args) (any, error) {
	slog.Info(fmt.Sprintf("%s - quit requested by remote caller", logPrefix))
	if a.quit != nil {
		a.quit()
	}
	return 0, nil
}

func reverse(_ context.Context, args registry.Args) (any, error) {
	s, ok := args.String(0)
	if !ok {
		return nil, fmt.Errorf("reverse expects a string argument")
	}
	return Reverse(s), nil
}

// Reverse reverses s by runes.
func Reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
