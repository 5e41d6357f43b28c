// Package postgres implements the record gateway on PostgreSQL through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gearcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the gateway satisfies the domain interface.
var _ domain.RecordGateway = (*Gateway)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/gearcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS records (
		seq BIGSERIAL,
		entity TEXT NOT NULL,
		id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (entity, id)
	)`,
	`CREATE INDEX IF NOT EXISTS records_parent_idx ON records (parent_id)`,
}

const upsertRecord = `INSERT INTO records (entity, id, parent_id, payload, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (entity, id) DO UPDATE SET parent_id = EXCLUDED.parent_id, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

// Gateway writes records to a single Postgres table keyed by entity and id.
type Gateway struct {
	db  *sql.DB
	dsn string
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Gateway, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply ddl: %w", err)
		}
	}
	return &Gateway{db: db, dsn: dsn}, nil
}

// Create upserts rec.
func (g *Gateway) Create(ctx context.Context, rec domain.Record) error {
	return g.upsert(ctx, rec)
}

// Update upserts rec.
func (g *Gateway) Update(ctx context.Context, rec domain.Record) error {
	return g.upsert(ctx, rec)
}

func (g *Gateway) upsert(ctx context.Context, rec domain.Record) error {
	if rec.Entity == "" || rec.ID == "" {
		return fmt.Errorf("record requires entity and id")
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "null"
	}
	if _, err := g.db.ExecContext(ctx, upsertRecord, string(rec.Entity), rec.ID, rec.ParentID, payload, rec.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert %s %s: %w", rec.Entity, rec.ID, err)
	}
	return nil
}

// Delete removes a record. Missing records are not an error.
func (g *Gateway) Delete(ctx context.Context, entity domain.EntityType, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM records WHERE entity = $1 AND id = $2`, string(entity), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	return nil
}

// Load returns every record in first-write order.
func (g *Gateway) Load(ctx context.Context) ([]domain.Record, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT entity, id, parent_id, payload, updated_at FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Record
	for rows.Next() {
		var (
			entity    string
			rec       domain.Record
			payload   []byte
			updatedAt time.Time
		)
		if err := rows.Scan(&entity, &rec.ID, &rec.ParentID, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Entity = domain.EntityType(entity)
		rec.Payload = payload
		rec.UpdatedAt = updatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (g *Gateway) Close() error { return g.db.Close() }

// DB exposes the underlying database handle.
func (g *Gateway) DB() *sql.DB { return g.db }

// DSN returns the connection string in use.
func (g *Gateway) DSN() string { return g.dsn }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
