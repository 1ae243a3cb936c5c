// Package pgstore provides a PostgreSQL implementation of alert.Persister.
// The queue is stored one row per entry, keyed by its position in queue
// order.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/triaged/internal/alert"
)

var tracer = otel.Tracer("github.com/linnemanlabs/triaged/internal/alert/pgstore")

//go:embed schema.sql
var schema string

var columns = []string{"position", "patient_id", "name", "score", "priority", "rationale", "queued_at"}

// Store persists the alert queue in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller
// owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Save replaces every stored row with entries inside one transaction.
func (s *Store) Save(ctx context.Context, entries []alert.Entry) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "COPY"),
		attribute.Int("triaged.alerts.count", len(entries)),
	))
	defer span.End()

	if err := s.save(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) save(ctx context.Context, entries []alert.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM alert_entries`); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}

	if len(entries) > 0 {
		rows := make([][]any, len(entries))
		for i, e := range entries {
			rows[i] = []any{i, e.PatientID, e.Name, e.Score, e.Priority, e.Rationale, e.Timestamp}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"alert_entries"}, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy alerts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the stored rows in queue order. An empty table yields nil.
func (s *Store) Load(ctx context.Context) ([]alert.Entry, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT patient_id, name, score, priority, rationale, queued_at
		   FROM alert_entries ORDER BY position`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (alert.Entry, error) {
		var e alert.Entry
		err := row.Scan(&e.PatientID, &e.Name, &e.Score, &e.Priority, &e.Rationale, &e.Timestamp)
		return e, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries, nil
}
