package sqlite

import (
	"context"
	"encoding/json"
	"go/build"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gearcore/pkg/domain"
)

func TestGatewayPersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "gear.db")
	g, err := Open(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	recs := []domain.Record{
		{Entity: domain.EntityItem, ID: "CA-001", Payload: json.RawMessage(`{"name":"Camera"}`), UpdatedAt: stamp},
		{Entity: domain.EntityReservation, ID: "r1", ParentID: "CA-001", Payload: json.RawMessage(`{"borrower":"Alice"}`), UpdatedAt: stamp},
		{Entity: domain.EntityAuditEntry, ID: "a1", Payload: json.RawMessage(`{"type":"checkout"}`), UpdatedAt: stamp},
	}
	for _, rec := range recs {
		if err := g.Create(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.ID, err)
		}
	}
	updated := recs[0]
	updated.Payload = json.RawMessage(`{"name":"Camera body"}`)
	if err := g.Update(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := g.Delete(ctx, domain.EntityAuditEntry, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}
	if loaded[0].ID != "CA-001" || string(loaded[0].Payload) != `{"name":"Camera body"}` {
		t.Fatalf("upsert must keep first-write order and latest payload: %+v", loaded[0])
	}
	if loaded[1].ParentID != "CA-001" || !loaded[1].UpdatedAt.Equal(stamp) {
		t.Fatalf("unexpected reservation record %+v", loaded[1])
	}
	if reopened.Path() != path || reopened.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
}

func TestGatewayRejectsIncompleteRecord(t *testing.T) {
	g, err := Open(filepath.Join(t.TempDir(), "gear.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	if err := g.Create(context.Background(), domain.Record{Entity: domain.EntityItem}); err == nil {
		t.Fatalf("expected missing id error")
	}
}

func TestImportsAreDomainOrStdlib(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if strings.HasPrefix(imp, "gearcore/") && imp != "gearcore/pkg/domain" {
			t.Fatalf("unexpected dependency: %s", imp)
		}
	}
}
