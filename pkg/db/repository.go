package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/native-bridge/pkg/events"
)

const repoLogPrefix = "db:repository"

// Repository stores diagnostics. It implements events.Publisher.
type Repository struct {
	pool *pgxpool.Pool
}

var _ events.Publisher = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InsertDiagnostic stores one event and returns its row id.
func (r *Repository) InsertDiagnostic(ctx context.Context, event *events.DiagnosticEvent) (int64, error) {
	occurredAt, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO bridge_diagnostics (kind, channel, request_id, namespace, command, message, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		string(event.Kind), event.Channel, event.RequestID,
		nullIfEmpty(event.Namespace), nullIfEmpty(event.Command), event.Message, occurredAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s - insert diagnostic: %w", repoLogPrefix, err)
	}
	return id, nil
}

// PublishDiagnostic stores the event.
func (r *Repository) PublishDiagnostic(ctx context.Context, event *events.DiagnosticEvent) error {
	id, err := r.InsertDiagnostic(ctx, event)
	if err != nil {
		return err
	}
	slog.Debug(fmt.Sprintf("%s - Stored %s diagnostic id=%d", repoLogPrefix, event.Kind, id))
	return nil
}

// ListRecentDiagnostics returns the newest diagnostics first. An empty kind matches all kinds.
func (r *Repository) ListRecentDiagnostics(ctx context.Context, kind string, limit int) ([]*Diagnostic, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, channel, request_id, namespace, command, message, occurred_at, created
		 FROM bridge_diagnostics
		 WHERE ($1 = '' OR kind = $1)
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $2`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - list diagnostics: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []*Diagnostic
	for rows.Next() {
		d, err := scanDiagnostic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list diagnostics: %w", repoLogPrefix, err)
	}
	return out, nil
}

// PruneDiagnostics deletes diagnostics older than the cutoff and returns how many were removed.
func (r *Repository) PruneDiagnostics(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bridge_diagnostics WHERE occurred_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%s - prune diagnostics: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Pruned %d diagnostics older than %s", repoLogPrefix, tag.RowsAffected(), olderThan.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}

func scanDiagnostic(row pgx.Row) (*Diagnostic, error) {
	var d Diagnostic
	err := row.Scan(&d.ID, &d.Kind, &d.Channel, &d.RequestID, &d.Namespace, &d.Command, &d.Message, &d.OccurredAt, &d.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - scan diagnostic: %w", repoLogPrefix, err)
	}
	return &d, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
