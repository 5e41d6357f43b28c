// Package sqlite implements the record gateway on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gearcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.RecordGateway = (*Gateway)(nil)

const schema = `CREATE TABLE IF NOT EXISTS records (
	entity     TEXT NOT NULL,
	id         TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (entity, id)
)`

const upsertRecord = `INSERT INTO records(entity, id, parent_id, payload, updated_at) VALUES(?,?,?,?,?)
ON CONFLICT(entity, id) DO UPDATE SET parent_id=excluded.parent_id, payload=excluded.payload, updated_at=excluded.updated_at`

// Gateway stores one row per record. Upserts keep the original rowid, so Load
// returns records in the order they were first written.
type Gateway struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Gateway, error) {
	if path == "" {
		path = "gearcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &Gateway{db: db, path: path}, nil
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
	_, err := g.db.ExecContext(ctx, upsertRecord,
		string(rec.Entity), rec.ID, rec.ParentID, []byte(rec.Payload), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", rec.Entity, rec.ID, err)
	}
	return nil
}

// Delete removes a record. Missing records are not an error.
func (g *Gateway) Delete(ctx context.Context, entity domain.EntityType, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND id = ?`, string(entity), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	return nil
}

// Load returns every record in first-write order.
func (g *Gateway) Load(ctx context.Context) ([]domain.Record, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT entity, id, parent_id, payload, updated_at FROM records ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Record
	for rows.Next() {
		var (
			rec       domain.Record
			entity    string
			payload   []byte
			updatedAt string
		)
		if err := rows.Scan(&entity, &rec.ID, &rec.ParentID, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Entity = domain.EntityType(entity)
		rec.Payload = payload
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for %s %s: %w", entity, rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (g *Gateway) Close() error { return g.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (g *Gateway) DB() *sql.DB { return g.db }

// Path returns the configured database path.
func (g *Gateway) Path() string { return g.path }
