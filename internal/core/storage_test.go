package core

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gearcore/internal/config"
	"gearcore/internal/infra/persistence/memory"
	"gearcore/internal/infra/persistence/sqlite"
)

func TestOpenRecordGateway(t *testing.T) {
	ctx := context.Background()
	g, err := OpenRecordGateway(ctx, config.StorageConfig{Driver: " Memory "})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := g.(*memory.Gateway); !ok {
		t.Fatalf("expected memory gateway, got %T", g)
	}

	path := filepath.Join(t.TempDir(), "gear.db")
	g, err = OpenRecordGateway(ctx, config.StorageConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := g.(*sqlite.Gateway); !ok {
		t.Fatalf("empty driver should open sqlite, got %T", g)
	}
	_ = g.Close()

	if _, err := OpenRecordGateway(ctx, config.StorageConfig{Driver: "cassandra"}); err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestServiceOverSQLiteGateway(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gear.db")
	open := func() *Service {
		g, err := OpenRecordGateway(ctx, config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: path})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return newTestService(t, WithRecordGateway(g))
	}

	first := open()
	mustCreateItem(t, first, Item{Name: "Boom pole", Category: "Audio"})
	if _, _, err := first.AddNote(ctx, "AU-001", "Tip thread stripped"); err != nil {
		t.Fatalf("note: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := open()
	defer second.Close(ctx)
	if err := second.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	item := mustGetItem(t, second, "AU-001")
	if len(item.Notes) != 1 || item.Notes[0].Text != "Tip thread stripped" {
		t.Fatalf("unexpected restored item %+v", item)
	}
	if n := len(second.History().AuditForItem("AU-001")); n != 2 {
		t.Fatalf("expected two audit entries, got %d", n)
	}
}

func TestConfigDerivedSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Categories = []config.CategoryConfig{
		{Name: "Consumables", Prefix: "cn", QuantityTracked: true},
		{Name: "Camera"},
	}
	cfg.Sync = config.SyncConfig{MaxAttempts: 3, Backoff: 10 * time.Millisecond}

	policy := PolicyFromConfig(cfg)
	if !policy.IsQuantityTracked("consumables") || policy.IsQuantityTracked("Camera") {
		t.Fatalf("unexpected tracking %+v", policy)
	}
	if policy.Prefix("Consumables") != "CN" || policy.Prefix("Camera") != "CA" {
		t.Fatalf("unexpected prefixes")
	}

	q := NewSyncQueue(nil, SyncOptionsFromConfig(cfg.Sync)...)
	if q.maxAttempts != 3 || q.backoff != 10*time.Millisecond {
		t.Fatalf("sync options not applied: %d %v", q.maxAttempts, q.backoff)
	}
}
