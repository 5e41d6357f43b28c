package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"gearcore/pkg/domain"
)

func TestKeyLayout(t *testing.T) {
	g := NewGateway(nil, "")
	if g.Prefix() != defaultPrefix {
		t.Fatalf("expected default prefix, got %s", g.Prefix())
	}
	member := memberFor(domain.EntityReservation, "r1")
	if got := g.recordKey(member); got != "gearcore:record:reservation:r1" {
		t.Fatalf("unexpected record key %s", got)
	}
	if g.indexKey() != "gearcore:records" || g.seqKey() != "gearcore:seq" {
		t.Fatalf("unexpected index keys")
	}
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Open(ctx, "127.0.0.1:1", "test"); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestPutRejectsIncompleteRecord(t *testing.T) {
	g := NewGateway(nil, "test")
	if err := g.Create(context.Background(), domain.Record{ID: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

// TestGatewayIntegration runs against a live server when GEARCORE_TEST_REDIS_ADDR is set.
func TestGatewayIntegration(t *testing.T) {
	addr := os.Getenv("GEARCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GEARCORE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := "gearcore-test-" + time.Now().Format("150405.000000")
	g, err := Open(ctx, addr, prefix)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = client.Close()
		_ = g.Close()
	})

	stamp := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	item := domain.Record{Entity: domain.EntityItem, ID: "CA-001", Payload: json.RawMessage(`{"name":"Camera"}`), UpdatedAt: stamp}
	audit := domain.Record{Entity: domain.EntityAuditEntry, ID: "a1", Payload: json.RawMessage(`{}`), UpdatedAt: stamp}
	if err := g.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := g.Create(ctx, audit); err != nil {
		t.Fatalf("create: %v", err)
	}
	item.Payload = json.RawMessage(`{"name":"Camera body"}`)
	if err := g.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}
	recs, err := g.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "CA-001" || string(recs[0].Payload) != `{"name":"Camera body"}` {
		t.Fatalf("unexpected records %+v", recs)
	}
	if err := g.Delete(ctx, domain.EntityAuditEntry, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, _ = g.Load(ctx)
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
}
