// Package main is the entrypoint for the native-bridge (binary name "bridge").
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/morezero/native-bridge/internal/config"
	"github.com/morezero/native-bridge/internal/server"
	"github.com/morezero/native-bridge/pkg/db"
	"github.com/morezero/native-bridge/pkg/events"
	"github.com/morezero/native-bridge/pkg/registry"
)

const usage = `Usage: bridge [command]
       bridge serve                          Start the bridge (HTTP, WebSocket, optional COMMS channel).
       bridge migrate up                     Run database migrations.
       bridge migrate status                 Show migration status.
       bridge capabilities                   Print the capabilities the manifest exposes.
       bridge diagnostics list [kind] [n]    Show the newest stored diagnostics (default 50).
       bridge diagnostics prune <age>        Delete stored diagnostics older than age (e.g. 72h).

Commands:
  serve              (default) Start the native bridge.
  migrate up         Create the diagnostics schema.
  migrate status     Report whether the diagnostics schema is present.
  capabilities       Build the registry from BRIDGE_MANIFEST_FILE and list it.
  diagnostics list   Kinds: protocol_error, invocation_error, duplicate_request, duplicate_completion, dropped_completion.
  diagnostics prune  Age is a Go duration.

Environment: BRIDGE_HTTP_ADDR (default :3000), BRIDGE_WS_PATH, BRIDGE_FS_ROOT, BRIDGE_MANIFEST_FILE,
BRIDGE_COMMS_ENABLED, COMMS_URL, DATABASE_URL (migrate, diagnostics), MIGRATION_PATH.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "capabilities":
		if err := runCapabilities(os.Stdout); err != nil {
			log.Fatalf("bridge capabilities: %v", err)
		}
		return
	case "diagnostics":
		if len(args) < 2 {
			log.Fatalf("bridge diagnostics: require subcommand (list, prune)")
		}
		switch sub := args[1]; sub {
		case "list":
			kind, limit, err := parseListArgs(args[2:])
			if err != nil {
				log.Fatalf("bridge diagnostics list: %v", err)
			}
			if err := runDiagnosticsList(os.Stdout, kind, limit); err != nil {
				log.Fatalf("bridge diagnostics list: %v", err)
			}
		case "prune":
			age, err := parsePruneArgs(args[2:])
			if err != nil {
				log.Fatalf("bridge diagnostics prune: %v", err)
			}
			if err := runDiagnosticsPrune(age); err != nil {
				log.Fatalf("bridge diagnostics prune: %v", err)
			}
		default:
			log.Fatalf("bridge diagnostics: unknown subcommand %q (use list, prune)", sub)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runCapabilities(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	manifest, err := server.LoadManifest(cfg)
	if err != nil {
		return err
	}
	s, err := server.NewServer(server.NewServerParams{Config: cfg, Manifest: manifest})
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Fprintf(w, "Manifest %s (disabled: %v)\n", manifest.Name(), manifest.Disabled())
	return printCapabilities(w, s.Registry().List())
}

func printCapabilities(w io.Writer, entries []registry.EntryInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAMESPACE\tCOMMAND\tVARIANT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Namespace, e.Command, e.Variant)
	}
	return tw.Flush()
}

// parseListArgs accepts an optional kind followed by an optional limit, in either order.
func parseListArgs(args []string) (kind string, limit int, err error) {
	if len(args) > 2 {
		return "", 0, fmt.Errorf("too many arguments")
	}
	for _, a := range args {
		if n, convErr := strconv.Atoi(a); convErr == nil {
			if n <= 0 {
				return "", 0, fmt.Errorf("limit must be positive, got %d", n)
			}
			limit = n
			continue
		}
		if !knownKind(a) {
			return "", 0, fmt.Errorf("unknown diagnostic kind %q", a)
		}
		kind = a
	}
	return kind, limit, nil
}

func knownKind(kind string) bool {
	switch events.DiagnosticKind(kind) {
	case events.KindProtocolError, events.KindInvocationError, events.KindDuplicateRequest,
		events.KindDuplicateCompletion, events.KindDroppedCompletion:
		return true
	}
	return false
}

func parsePruneArgs(args []string) (time.Duration, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("require exactly one age argument")
	}
	age, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid age: %w", err)
	}
	if age <= 0 {
		return 0, fmt.Errorf("age must be positive")
	}
	return age, nil
}

func runDiagnosticsList(w io.Writer, kind string, limit int) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	rows, err := db.NewRepository(pool).ListRecentDiagnostics(ctx, kind, limit)
	if err != nil {
		return err
	}
	return printDiagnostics(w, rows)
}

func printDiagnostics(w io.Writer, rows []*db.Diagnostic) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OCCURRED\tKIND\tCHANNEL\tREQUEST\tTARGET\tMESSAGE")
	for _, d := range rows {
		request := "-"
		if d.RequestID != nil {
			request = strconv.FormatInt(*d.RequestID, 10)
		}
		target := "-"
		if d.Namespace != nil && d.Command != nil {
			target = *d.Namespace + "." + *d.Command
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.OccurredAt.UTC().Format(time.RFC3339), d.Kind, d.Channel, request, target, d.Message)
	}
	return tw.Flush()
}

func runDiagnosticsPrune(age time.Duration) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	n, err := db.NewRepository(pool).PruneDiagnostics(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d diagnostics older than %s.\n", n, age)
	return nil
}
