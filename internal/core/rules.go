package core

import (
	"sort"

	"gearcore/pkg/domain"
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in integrity rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewKitCompositionRule())
	engine.Register(NewCheckoutFieldsRule())
	engine.Register(NewCheckoutHistoryRule())
	engine.Register(NewMaintenanceIntegrityRule())
	return engine
}

// itemsOf extracts the item on each side of a change.
func itemsOf(change Change) (before, after *Item) {
	if change.Entity != EntityItem {
		return nil, nil
	}
	return asItem(change.Before), asItem(change.After)
}

func asItem(v any) *Item {
	switch item := v.(type) {
	case Item:
		return &item
	case *Item:
		return item
	}
	return nil
}

// changedIDs lists the ids of items created or updated in changes, sorted.
func changedIDs(changes []Change) []string {
	changed := domain.ChangedItems(changes)
	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
