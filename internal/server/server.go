// Package server orchestrates all components: registry, dispatcher, WebSocket and COMMS channels, DB, HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/native-bridge/internal/config"
	"github.com/morezero/native-bridge/internal/telemetry"
	"github.com/morezero/native-bridge/pkg/bootstrap"
	"github.com/morezero/native-bridge/pkg/commsutil"
	"github.com/morezero/native-bridge/pkg/db"
	"github.com/morezero/native-bridge/pkg/dispatcher"
	"github.com/morezero/native-bridge/pkg/events"
	"github.com/morezero/native-bridge/pkg/nativeapp"
	"github.com/morezero/native-bridge/pkg/nativefs"
	"github.com/morezero/native-bridge/pkg/registry"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Server owns the capability registry and the channels that dispatch into it.
type Server struct {
	cfg         *config.Config
	manifest    *bootstrap.ResolvedManifest
	reg         *registry.Registry
	disp        *dispatcher.Dispatcher
	fs          *nativefs.Bridge
	diagnostics events.Publisher
	probes      map[string]registry.Probe
	started     time.Time

	nextChannel atomic.Uint64
	mu          sync.Mutex
	channels    map[*dispatcher.Correlator]struct{}
}

// NewServerParams holds the collaborators for NewServer. Only Config is required.
type NewServerParams struct {
	Config      *config.Config
	Manifest    *bootstrap.ResolvedManifest
	Diagnostics events.Publisher
	Probes      map[string]registry.Probe
	// Quit is called by app.quit.
	Quit   func()
	Dialog nativefs.Dialog
	Tracer trace.Tracer
}

// NewServer builds the registry (fs, app and test namespaces filtered by the manifest) and the dispatcher.
func NewServer(p NewServerParams) (*Server, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("%s - config is required", logPrefix)
	}
	manifest := p.Manifest
	if manifest == nil {
		var err error
		if manifest, err = bootstrap.Resolve(bootstrap.DefaultManifest()); err != nil {
			return nil, err
		}
	}
	diagnostics := p.Diagnostics
	if diagnostics == nil {
		diagnostics = &events.NoOpPublisher{}
	}

	started := time.Now()
	fsBridge, err := nativefs.New(&nativefs.Options{
		Root:       p.Config.FSRoot,
		AsyncDelay: p.Config.AsyncDelay,
		Dialog:     p.Dialog,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create fs bridge: %w", logPrefix, err)
	}
	if root := fsBridge.Root(); root != "" {
		slog.Info(fmt.Sprintf("%s - fs capabilities confined to %s", logPrefix, root))
	}
	app := nativeapp.New(&nativeapp.Options{Start: started, Quit: p.Quit})

	builder := registry.NewBuilder().WithFilter(manifest.Allows)
	if err := builder.Install(fsBridge, app); err != nil {
		fsBridge.Close()
		return nil, err
	}
	reg := builder.Build()

	s := &Server{
		cfg:         p.Config,
		manifest:    manifest,
		reg:         reg,
		disp:        dispatcher.NewDispatcher(reg, &dispatcher.Options{Diagnostics: diagnostics, Tracer: p.Tracer}),
		fs:          fsBridge,
		diagnostics: diagnostics,
		probes:      p.Probes,
		started:     started,
		channels:    make(map[*dispatcher.Correlator]struct{}),
	}
	if s.probes == nil {
		s.probes = map[string]registry.Probe{}
	}
	slog.Info(fmt.Sprintf("%s - Registry built with %d capabilities (manifest %s)", logPrefix, reg.Len(), manifest.Name()))
	return s, nil
}

// Close releases the fs root handle.
func (s *Server) Close() error {
	return s.fs.Close()
}

// Registry returns the built registry.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Handler returns the HTTP routes: the WebSocket channel, health, readiness, capabilities and the home page.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.WSPath, s.websocketHandler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", handleReady)
	mux.HandleFunc("/capabilities", s.handleCapabilities)
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	} else {
		mux.HandleFunc("/", s.handleHome())
	}
	return mux
}

// openChannel registers a correlator for a new channel.
func (s *Server) openChannel(name string, sink dispatcher.Sink) *dispatcher.Correlator {
	c := dispatcher.NewCorrelator(name, sink, s.diagnostics)
	s.mu.Lock()
	s.channels[c] = struct{}{}
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - Channel %s opened", logPrefix, name))
	return c
}

// closeChannel abandons the channel's pending requests and forgets it.
func (s *Server) closeChannel(c *dispatcher.Correlator) {
	s.mu.Lock()
	delete(s.channels, c)
	s.mu.Unlock()
	c.Close()
	st := c.Stats()
	slog.Info(fmt.Sprintf("%s - Channel %s closed (delivered=%d duplicates=%d dropped=%d)", logPrefix, c.Channel(), st.Delivered, st.Duplicates, st.Dropped))
}

// channelStatus is the status page view of one open channel.
type channelStatus struct {
	Name    string           `json:"name"`
	Pending int              `json:"pending"`
	Stats   dispatcher.Stats `json:"stats"`
}

func (s *Server) openChannels() []channelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]channelStatus, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, channelStatus{Name: c.Channel(), Pending: c.Pending(), Stats: c.Stats()})
	}
	return out
}

// LoadManifest loads BRIDGE_MANIFEST_FILE (or a default location) and resolves it against the bridge version.
func LoadManifest(cfg *config.Config) (*bootstrap.ResolvedManifest, error) {
	m, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	manifest, err := bootstrap.Resolve(m)
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", logPrefix, registry.CodeConfiguration, err)
	}
	return manifest, nil
}

// Run loads config, installs logging, and serves until SIGINT/SIGTERM or app.quit.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg)
}

// Serve wires every component from cfg and blocks until ctx is done, app.quit is called,
// or the HTTP listener fails.
func Serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting native-bridge %s", logPrefix, bootstrap.BridgeVersion))

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    cfg.COMMSName,
		ServiceVersion: bootstrap.BridgeVersion,
		Endpoint:       cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn(fmt.Sprintf("%s - tracing shutdown: %v", logPrefix, err))
		}
	}()

	// Step 1: Load and resolve the capability manifest
	manifest, err := LoadManifest(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var publishers []events.Publisher
	probes := map[string]registry.Probe{}

	// Step 2: Optional database diagnostics sink
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		repo := db.NewRepository(pool)
		publishers = append(publishers, repo)
		probes["database"] = repo.Ping
	}

	// Step 3: Optional COMMS connection
	var nc *comms.Conn
	var commsCh atomic.Pointer[CommsChannel]
	if cfg.COMMSEnabled {
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, &commsutil.ConnectOpts{
			OnClosed: func() {
				if ch := commsCh.Load(); ch != nil {
					ch.Close()
				}
			},
		})
		if err != nil {
			return err
		}
		defer nc.Close()

		publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.DiagnosticsSubject}))
		probes["comms"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("comms status %s", nc.Status())
			}
			return nil
		}
	}

	// Step 4: Registry and dispatcher. Diagnostics are queued so a slow sink never stalls a channel.
	diagnostics := events.NewAsyncPublisher(events.NewMultiPublisher(publishers...), nil)
	flushDiagnostics := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := diagnostics.Close(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - diagnostics flush: %v", logPrefix, err))
		}
	}
	defer flushDiagnostics()
	s, err := NewServer(NewServerParams{
		Config:      cfg,
		Manifest:    manifest,
		Diagnostics: diagnostics,
		Probes:      probes,
		Quit: func() {
			slog.Info(fmt.Sprintf("%s - Quit requested", logPrefix))
			cancel()
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	// Step 5: COMMS channel
	if nc != nil {
		ch, err := s.ServeComms(ctx, nc)
		if err != nil {
			return err
		}
		commsCh.Store(ch)
		defer ch.Close()
	}

	// Step 6: HTTP server (WebSocket channel, health, status)
	httpServer := &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s (WebSocket %s)", logPrefix, httpServer.Addr, cfg.WSPath))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info(fmt.Sprintf("%s - native-bridge is ready", logPrefix))

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
	case err := <-errCh:
		serveErr = fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		cancel()
	}

	// Graceful shutdown. WebSocket sessions end with the base context.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	if ch := commsCh.Load(); ch != nil {
		ch.Close()
	}
	flushDiagnostics()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
		}
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return serveErr
}
