package memory

import (
	"context"
	"encoding/json"
	"testing"

	"gearcore/pkg/domain"
)

func TestGatewayLastWriteWinsKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	g := NewGateway()
	first := domain.Record{Entity: domain.EntityItem, ID: "CA-001", Payload: json.RawMessage(`{"name":"a"}`)}
	second := domain.Record{Entity: domain.EntityReservation, ID: "r1", ParentID: "CA-001", Payload: json.RawMessage(`{}`)}
	if err := g.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := g.Create(ctx, second); err != nil {
		t.Fatalf("create: %v", err)
	}
	first.Payload = json.RawMessage(`{"name":"b"}`)
	if err := g.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	recs, err := g.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "CA-001" || string(recs[0].Payload) != `{"name":"b"}` {
		t.Fatalf("unexpected records %+v", recs)
	}
	if err := g.Delete(ctx, domain.EntityReservation, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("expected one record after delete")
	}
}

func TestGatewayRejectsInvalidAndClosed(t *testing.T) {
	ctx := context.Background()
	g := NewGateway()
	if err := g.Create(ctx, domain.Record{}); err == nil {
		t.Fatalf("expected validation error")
	}
	_ = g.Close()
	if err := g.Update(ctx, domain.Record{Entity: domain.EntityItem, ID: "x"}); err == nil {
		t.Fatalf("expected closed error")
	}
}
