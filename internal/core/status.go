package core

import (
	"time"

	"gearcore/pkg/domain"
)

const (
	StatusAvailable      = domain.StatusAvailable
	StatusCheckedOut     = domain.StatusCheckedOut
	StatusReserved       = domain.StatusReserved
	StatusNeedsAttention = domain.StatusNeedsAttention
	StatusMissing        = domain.StatusMissing
	StatusOverdue        = domain.StatusOverdue
)

// StatusEvent is an input to the status state machine.
type StatusEvent string

const (
	EventCheckout       StatusEvent = "checkout"
	EventCheckin        StatusEvent = "checkin"
	EventCheckinDamaged StatusEvent = "checkin-damaged"
)

// NextStatus returns the status an item moves to when event happens in
// status current. Overdue is treated as checked-out since it is never stored.
func NextStatus(current ItemStatus, event StatusEvent) (ItemStatus, error) {
	switch event {
	case EventCheckout:
		switch current {
		case StatusAvailable, StatusReserved, StatusNeedsAttention:
			return StatusCheckedOut, nil
		}
		return current, invalidTransition(string(current), string(StatusCheckedOut))
	case EventCheckin, EventCheckinDamaged:
		next := StatusAvailable
		if event == EventCheckinDamaged {
			next = StatusNeedsAttention
		}
		if current == StatusCheckedOut || current == StatusOverdue {
			return next, nil
		}
		return current, invalidTransition(string(current), string(next))
	default:
		return current, invalid("event", "unknown status event %q", event)
	}
}

// IsOverdue reports whether a checked-out item is past its due date.
func IsOverdue(item Item, now time.Time) bool {
	return item.Status == StatusCheckedOut && item.DueBack != nil && item.DueBack.Before(now)
}

// EffectiveStatus is the status to display or filter on: overdue when
// IsOverdue, otherwise the stored status.
func EffectiveStatus(item Item, now time.Time) ItemStatus {
	if IsOverdue(item, now) {
		return StatusOverdue
	}
	return item.Status
}

// CategoryTracking reports which categories count stock instead of serials.
type CategoryTracking interface {
	IsQuantityTracked(category string) bool
}

// IsLowStock reports whether a quantity-tracked item is at or below its
// reorder point. Serial-tracked items are never low on stock.
func IsLowStock(item Item, tracking CategoryTracking) bool {
	if tracking == nil || !tracking.IsQuantityTracked(item.Category) {
		return false
	}
	return item.Quantity <= item.ReorderPoint
}
