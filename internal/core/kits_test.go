package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"gearcore/pkg/domain"
)

func seedLighting(t *testing.T, svc *Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		mustCreateItem(t, svc, Item{Base: domain.Base{ID: id}, Name: "Light " + id, Category: "Lighting"})
	}
}

func TestKitScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedLighting(t, svc, "LI-010", "LI-011", "LI-012")

	kit, _, err := svc.ConvertToKit(ctx, "LI-010", "kit")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !kit.IsKit || kit.KitType != "kit" || len(kit.ChildItemIDs) != 0 {
		t.Fatalf("unexpected kit %+v", kit)
	}
	batch, err := svc.AddChildren(ctx, "LI-010", []string{"LI-011", "LI-012"})
	if err != nil {
		t.Fatalf("add children: %v", err)
	}
	if len(batch.Added) != 2 || len(batch.Skipped) != 0 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	kit = mustGetItem(t, svc, "LI-010")
	if !reflect.DeepEqual(kit.ChildItemIDs, []string{"LI-011", "LI-012"}) {
		t.Fatalf("unexpected children %v", kit.ChildItemIDs)
	}
	for _, id := range []string{"LI-011", "LI-012"} {
		child := mustGetItem(t, svc, id)
		if child.ParentKitID == nil || *child.ParentKitID != "LI-010" {
			t.Fatalf("%s should point at LI-010, got %v", id, child.ParentKitID)
		}
	}

	kit, _, err = svc.RemoveChild(ctx, "LI-010", "LI-011")
	if err != nil {
		t.Fatalf("remove child: %v", err)
	}
	if !reflect.DeepEqual(kit.ChildItemIDs, []string{"LI-012"}) {
		t.Fatalf("unexpected children after removal %v", kit.ChildItemIDs)
	}
	if child := mustGetItem(t, svc, "LI-011"); child.ParentKitID != nil {
		t.Fatalf("removed child still points at kit: %v", *child.ParentKitID)
	}
	if _, _, err := svc.RemoveChild(ctx, "LI-010", "LI-011"); !IsValidation(err) {
		t.Fatalf("removing a non-child must fail validation, got %v", err)
	}
}

func TestAddChildrenSkipsInvalidTargets(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedLighting(t, svc, "LI-001", "LI-002", "LI-003", "LI-004")
	for _, id := range []string{"LI-001", "LI-002"} {
		if _, _, err := svc.ConvertToKit(ctx, id, ""); err != nil {
			t.Fatalf("convert %s: %v", id, err)
		}
	}
	if _, err := svc.AddChildren(ctx, "LI-002", []string{"LI-004"}); err != nil {
		t.Fatalf("seed kit: %v", err)
	}

	batch, err := svc.AddChildren(ctx, "LI-001", []string{"LI-001", "LI-002", "LI-404", "LI-004", "LI-003", "LI-003"})
	if err != nil {
		t.Fatalf("add children: %v", err)
	}
	if !reflect.DeepEqual(batch.Added, []string{"LI-003"}) {
		t.Fatalf("unexpected added %v", batch.Added)
	}
	if len(batch.Skipped) != 4 {
		t.Fatalf("expected four skipped targets, got %+v", batch.Skipped)
	}
	kit := mustGetItem(t, svc, "LI-001")
	if kit.KitType != defaultKitType || !reflect.DeepEqual(kit.ChildItemIDs, []string{"LI-003"}) {
		t.Fatalf("unexpected kit %+v", kit)
	}

	if _, err := svc.AddChildren(ctx, "LI-003", []string{"LI-004"}); !IsValidation(err) {
		t.Fatalf("non-kit parent must fail validation, got %v", err)
	}
	if _, err := svc.AddChildren(ctx, "LI-404", []string{"LI-004"}); !IsNotFound(err) {
		t.Fatalf("missing kit must be not found, got %v", err)
	}
	_, _, err = svc.ConvertToKit(ctx, "LI-004", "")
	if !errors.Is(err, domain.ErrNestedKit) {
		t.Fatalf("a kit child cannot become a kit, got %v", err)
	}
	if _, _, err := svc.ConvertToKit(ctx, "LI-001", ""); !IsValidation(err) {
		t.Fatalf("conversion is one-way, got %v", err)
	}
}

func TestClearChildrenAndDeleteDetach(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedLighting(t, svc, "LI-010", "LI-011", "LI-012", "LI-013")
	if _, _, err := svc.ConvertToKit(ctx, "LI-010", "case"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := svc.AddChildren(ctx, "LI-010", []string{"LI-011", "LI-012"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddRequiredAccessories(ctx, "LI-013", []string{"LI-011"}); err != nil {
		t.Fatalf("accessory: %v", err)
	}

	if _, err := svc.DeleteItem(ctx, "LI-011", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("delete requires confirmation, got %v", err)
	}
	if _, err := svc.DeleteItem(ctx, "LI-011", true); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if kit := mustGetItem(t, svc, "LI-010"); !reflect.DeepEqual(kit.ChildItemIDs, []string{"LI-012"}) {
		t.Fatalf("deleted child left in kit: %v", kit.ChildItemIDs)
	}
	if other := mustGetItem(t, svc, "LI-013"); len(other.RequiredAccessories) != 0 {
		t.Fatalf("deleted accessory still required: %v", other.RequiredAccessories)
	}
	deleted := svc.History().AuditForItem("LI-011")
	if last := deleted[len(deleted)-1]; last.Type != "item_deleted" || last.Content == "" {
		t.Fatalf("delete audit should keep the item content: %+v", last)
	}

	kit, _, err := svc.ClearChildren(ctx, "LI-010")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(kit.ChildItemIDs) != 0 || !kit.IsKit {
		t.Fatalf("cleared kit should stay a kit without children: %+v", kit)
	}
	if child := mustGetItem(t, svc, "LI-012"); child.ParentKitID != nil {
		t.Fatalf("cleared child still linked")
	}
}

func TestRequiredAccessories(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedLighting(t, svc, "LI-001", "LI-002", "LI-003")
	batch, err := svc.AddRequiredAccessories(ctx, "LI-001", []string{"LI-002", "LI-001", "LI-404", "LI-002"})
	if err != nil {
		t.Fatalf("add accessories: %v", err)
	}
	if !reflect.DeepEqual(batch.Added, []string{"LI-002"}) || len(batch.Skipped) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if again, _ := svc.AddRequiredAccessories(ctx, "LI-001", []string{"LI-002"}); len(again.Skipped) != 1 {
		t.Fatalf("existing link should be skipped: %+v", again)
	}
	if acc := mustGetItem(t, svc, "LI-002"); len(acc.RequiredAccessories) != 0 {
		t.Fatalf("accessory links are one-directional")
	}
	item, _, err := svc.RemoveRequiredAccessory(ctx, "LI-001", "LI-002")
	if err != nil || item.HasRequiredAccessory("LI-002") {
		t.Fatalf("remove accessory: %v %+v", err, item)
	}
	if _, _, err := svc.RemoveRequiredAccessory(ctx, "LI-001", "LI-003"); !IsValidation(err) {
		t.Fatalf("removing an unlinked accessory must fail, got %v", err)
	}
}

func TestKitCompositionRule(t *testing.T) {
	ctx := context.Background()
	rule := NewKitCompositionRule()
	svc := newTestService(t)
	seedLighting(t, svc, "LI-010", "LI-011")
	if _, _, err := svc.ConvertToKit(ctx, "LI-010", ""); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := svc.AddChildren(ctx, "LI-010", []string{"LI-011"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	kit := mustGetItem(t, svc, "LI-010")
	nested := kit.Clone()
	parent := "LI-999"
	nested.ParentKitID = &parent
	nested.ChildItemIDs = append(nested.ChildItemIDs, "LI-404")
	view := staticView{items: map[string]Item{"LI-010": nested, "LI-011": mustGetItem(t, svc, "LI-011")}}
	res, err := rule.Evaluate(ctx, view, []Change{{Entity: EntityItem, Action: ActionUpdate, Before: kit, After: nested}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() || len(res.Violations) != 3 {
		t.Fatalf("expected nested, dangling child and missing parent violations, got %+v", res.Violations)
	}
	_ = svc.Store().View(ctx, func(v TransactionView) error {
		clean, err := rule.Evaluate(ctx, v, []Change{{Entity: EntityItem, Action: ActionUpdate, After: kit}})
		if err != nil || len(clean.Violations) != 0 {
			t.Fatalf("consistent kit flagged: %v %+v", err, clean.Violations)
		}
		return nil
	})
}

type staticView struct {
	items map[string]Item
}

func (v staticView) ListItems() []Item {
	out := make([]Item, 0, len(v.items))
	for _, item := range v.items {
		out = append(out, item)
	}
	return out
}

func (v staticView) FindItem(id string) (Item, bool) {
	item, ok := v.items[id]
	return item, ok
}
