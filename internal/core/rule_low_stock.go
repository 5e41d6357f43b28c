package core

import (
	"context"
	"fmt"

	"gearcore/pkg/domain"
)

// NewLowStockRule warns when a change leaves a quantity-tracked item at or
// below its reorder point. It never blocks.
func NewLowStockRule(tracking CategoryTracking) domain.Rule {
	return lowStockRule{tracking: tracking}
}

type lowStockRule struct {
	tracking CategoryTracking
}

func (lowStockRule) Name() string { return "low_stock" }

func (r lowStockRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	changed := domain.ChangedItems(changes)
	for _, id := range changedIDs(changes) {
		item := changed[id]
		if !IsLowStock(item, r.tracking) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "low_stock",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("item %s has %d left, reorder point %d", id, item.Quantity, item.ReorderPoint),
			Entity:   domain.EntityItem,
			EntityID: id,
		})
	}
	return res, nil
}
