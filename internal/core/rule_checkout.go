package core

import (
	"context"
	"fmt"
	"reflect"

	"gearcore/pkg/domain"
)

// NewCheckoutFieldsRule blocks commits where an item's status disagrees with
// its borrower, checkout date and due date fields.
func NewCheckoutFieldsRule() domain.Rule {
	return checkoutFieldsRule{}
}

type checkoutFieldsRule struct{}

func (checkoutFieldsRule) Name() string { return "checkout_fields" }

func (checkoutFieldsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	changed := domain.ChangedItems(changes)
	for _, id := range changedIDs(changes) {
		item := changed[id]
		set := 0
		if item.CheckedOutTo != nil {
			set++
		}
		if item.CheckedOutDate != nil {
			set++
		}
		if item.DueBack != nil {
			set++
		}
		var msg string
		switch {
		case item.Status == domain.StatusCheckedOut && set != 3:
			msg = fmt.Sprintf("item %s is checked out without borrower, checkout date and due date", id)
		case item.Status != domain.StatusCheckedOut && set != 0:
			msg = fmt.Sprintf("item %s is %s but still carries checkout fields", id, item.Status)
		case !item.Status.Stored():
			msg = fmt.Sprintf("item %s has invalid status %s", id, item.Status)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "checkout_fields",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityItem,
			EntityID: id,
		})
	}
	return res, nil
}

// NewCheckoutHistoryRule blocks any update that edits or removes an existing
// checkout history entry.
func NewCheckoutHistoryRule() domain.Rule {
	return checkoutHistoryRule{}
}

type checkoutHistoryRule struct{}

func (checkoutHistoryRule) Name() string { return "checkout_history_append_only" }

func (checkoutHistoryRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionUpdate {
			continue
		}
		before, after := itemsOf(change)
		if before == nil || after == nil {
			continue
		}
		if historyExtends(before.CheckoutHistory, after.CheckoutHistory) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "checkout_history_append_only",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("checkout history of item %s was rewritten", after.ID),
			Entity:   domain.EntityItem,
			EntityID: after.ID,
		})
	}
	return res, nil
}

func historyExtends(before, after []domain.CheckoutEvent) bool {
	if len(after) < len(before) {
		return false
	}
	for i := range before {
		if !reflect.DeepEqual(before[i], after[i]) {
			return false
		}
	}
	return true
}
