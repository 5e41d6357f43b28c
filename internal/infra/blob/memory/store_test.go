package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"gearcore/internal/blob/core"
)

func TestStoreRoundTripIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]string{"item": "CA-001"}
	if _, err := s.Put(ctx, "items/CA-001/a.jpg", bytes.NewReader([]byte("abc")), core.PutOptions{Metadata: meta}); err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["item"] = "mutated"
	info, rc, err := s.Get(ctx, "items/CA-001/a.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "abc" || info.Metadata["item"] != "CA-001" {
		t.Fatalf("unexpected copy %q %+v", body, info)
	}
	info.Metadata["item"] = "again"
	head, _ := s.Head(ctx, "items/CA-001/a.jpg")
	if head.Metadata["item"] != "CA-001" {
		t.Fatalf("head leaked mutation: %+v", head)
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	_, _ = s.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{})
	if _, err := s.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if ok, _ := s.Delete(ctx, "k"); !ok {
		t.Fatalf("expected delete to report existing")
	}
	if list, _ := s.List(ctx, ""); len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}
