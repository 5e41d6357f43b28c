package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"gearcore/pkg/domain"
)

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindItem("missing"); ok {
			t.Fatalf("expected missing item lookup")
		}
		created, err := tx.CreateItem(domain.Item{Name: "Camera", Category: "camera"})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if len(tx.Snapshot().ListItems()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListItems()) != 1 {
		t.Fatalf("expected persisted item")
	}
	snapshot := store.ExportState()
	if err := store.ImportState(Snapshot{}); err != nil {
		t.Fatalf("import empty: %v", err)
	}
	if len(store.ListItems()) != 0 {
		t.Fatalf("expected cleared state")
	}
	if err := store.ImportState(snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(store.ListItems()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil || store.NowFunc() == nil {
		t.Fatalf("expected rules engine and clock")
	}
}

func TestStoreRuleViolationLeavesStateUntouched(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateItem(domain.Item{Base: domain.Base{ID: "CA-001"}, Name: "Fail"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if _, ok := store.GetItem("CA-001"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestStoreMutatorErrorDiscardsTransaction(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	seed(t, store, domain.Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera"})
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateItem("missing", func(*domain.Item) error { return nil }); err == nil {
			t.Fatalf("expected missing item error")
		}
		if _, err := tx.UpdateItem("CA-001", func(i *domain.Item) error { i.Name = "Renamed"; return nil }); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected mutator error")
	}
	item, _ := store.GetItem("CA-001")
	if item.Name != "Camera" {
		t.Fatalf("rolled back transaction leaked name %q", item.Name)
	}
}

func TestUpdateItemIgnoresProjectionWrites(t *testing.T) {
	store := NewStore(nil)
	seed(t, store,
		domain.Item{Base: domain.Base{ID: "K1"}, Name: "Kit", IsKit: true},
		domain.Item{Base: domain.Base{ID: "A"}, Name: "Child"},
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		bogus := "K1"
		_, err := tx.UpdateItem("A", func(i *domain.Item) error {
			i.ParentKitID = &bogus
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	item, _ := store.GetItem("A")
	if item.ParentKitID != nil {
		t.Fatalf("parent projection must come from the relation only")
	}
}

func TestKitLinksAreSymmetricAndRecorded(t *testing.T) {
	store := NewStore(nil)
	seed(t, store,
		domain.Item{Base: domain.Base{ID: "LI-010"}, Name: "Light kit", IsKit: true},
		domain.Item{Base: domain.Base{ID: "LI-001"}, Name: "Light 1"},
		domain.Item{Base: domain.Base{ID: "LI-002"}, Name: "Light 2"},
	)
	rec := &recordingRule{}
	store.RulesEngine().Register(rec)

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := tx.AttachKitChild("LI-010", "LI-001"); err != nil {
			return err
		}
		return tx.AttachKitChild("LI-010", "LI-002")
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(rec.changes) != 4 {
		t.Fatalf("expected kit and child updates for each attach, got %d", len(rec.changes))
	}
	kit, _ := store.GetItem("LI-010")
	if !reflect.DeepEqual(kit.ChildItemIDs, []string{"LI-001", "LI-002"}) {
		t.Fatalf("unexpected children %v", kit.ChildItemIDs)
	}
	for _, id := range kit.ChildItemIDs {
		child, _ := store.GetItem(id)
		if child.ParentKitID == nil || *child.ParentKitID != "LI-010" {
			t.Fatalf("child %s lacks parent", id)
		}
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		removed, err := tx.DetachAllKitChildren("LI-010")
		if len(removed) != 2 {
			t.Fatalf("expected two removed children, got %v", removed)
		}
		return err
	})
	if err != nil {
		t.Fatalf("detach all: %v", err)
	}
	for _, id := range []string{"LI-001", "LI-002"} {
		child, _ := store.GetItem(id)
		if child.ParentKitID != nil {
			t.Fatalf("child %s still linked", id)
		}
	}
}

func TestAttachKitChildRejections(t *testing.T) {
	store := NewStore(nil)
	seed(t, store,
		domain.Item{Base: domain.Base{ID: "K1"}, Name: "Kit", IsKit: true},
		domain.Item{Base: domain.Base{ID: "K2"}, Name: "Kit 2", IsKit: true},
		domain.Item{Base: domain.Base{ID: "A"}, Name: "Plain"},
	)
	cases := []struct {
		name       string
		kit, child string
	}{
		{"missing kit", "nope", "A"},
		{"missing child", "K1", "nope"},
		{"not a kit", "A", "K1"},
		{"nested kit", "K1", "K2"},
		{"self", "K1", "K1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				return tx.AttachKitChild(tc.kit, tc.child)
			})
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDeleteItemDetachesRelations(t *testing.T) {
	store := NewStore(nil)
	seed(t, store,
		domain.Item{Base: domain.Base{ID: "K1"}, Name: "Kit", IsKit: true},
		domain.Item{Base: domain.Base{ID: "A"}, Name: "A"},
		domain.Item{Base: domain.Base{ID: "B"}, Name: "B"},
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := tx.AttachKitChild("K1", "A"); err != nil {
			return err
		}
		return tx.AttachKitChild("K1", "B")
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteItem("A")
	})
	if err != nil {
		t.Fatalf("delete child: %v", err)
	}
	kit, _ := store.GetItem("K1")
	if !reflect.DeepEqual(kit.ChildItemIDs, []string{"B"}) {
		t.Fatalf("expected only B to remain, got %v", kit.ChildItemIDs)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteItem("K1")
	})
	if err != nil {
		t.Fatalf("delete kit: %v", err)
	}
	b, _ := store.GetItem("B")
	if b.ParentKitID != nil {
		t.Fatalf("B should be orphaned after kit delete")
	}
}

func TestImportStateRejectsInconsistentKits(t *testing.T) {
	store := NewStore(nil)
	seed(t, store, domain.Item{Base: domain.Base{ID: "keep"}, Name: "Keep"})
	err := store.ImportState(Snapshot{
		Items: map[string]domain.Item{"K1": {Name: "Kit", IsKit: true}},
		Kits:  map[string][]string{"K1": {"ghost"}},
	})
	if err == nil {
		t.Fatalf("expected dangling child error")
	}
	if _, ok := store.GetItem("keep"); !ok {
		t.Fatalf("failed import must not replace state")
	}
}

func TestImportStateDerivesKitsFromItems(t *testing.T) {
	store := NewStore(nil)
	err := store.ImportState(Snapshot{Items: map[string]domain.Item{
		"K1": {Name: "Kit", IsKit: true, ChildItemIDs: []string{"A"}},
		"A":  {Name: "A"},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	a, _ := store.GetItem("A")
	if a.ParentKitID == nil || *a.ParentKitID != "K1" {
		t.Fatalf("expected derived parent link")
	}
}

func TestWithNowFuncStampsTimestamps(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(nil, WithNowFunc(func() time.Time { return fixed }))
	seed(t, store, domain.Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera"})
	item, _ := store.GetItem("CA-001")
	if !item.CreatedAt.Equal(fixed) || !item.UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamps %v %v", item.CreatedAt, item.UpdatedAt)
	}
}

func seed(t *testing.T, store *Store, items ...domain.Item) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, item := range items {
			if _, err := tx.CreateItem(item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

type recordingRule struct{ changes []domain.Change }

func (*recordingRule) Name() string { return "record" }

func (r *recordingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	r.changes = append(r.changes, changes...)
	return domain.Result{}, nil
}
