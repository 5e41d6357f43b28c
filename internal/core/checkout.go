package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gearcore/pkg/domain"
)

// CheckoutRequest describes who takes an item and until when.
type CheckoutRequest struct {
	Borrower     string
	ContactEmail string
	Project      string
	DueDate      time.Time
	Notes        string
}

// CheckinRequest describes the state an item comes back in.
type CheckinRequest struct {
	Condition         Condition
	DamageReported    bool
	DamageDescription string
	Notes             string
}

// Checkout hands an item to a borrower.
func (s *Service) Checkout(ctx context.Context, itemID string, req CheckoutRequest) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "checkout", func(ctx context.Context) (string, Result, error) {
		borrower := strings.TrimSpace(req.Borrower)
		if borrower == "" {
			return itemID, Result{}, invalid("borrower", "is required")
		}
		if req.DueDate.IsZero() {
			return itemID, Result{}, invalid("due_date", "is required")
		}
		due := req.DueDate.UTC()
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			next, err := NextStatus(before.Status, EventCheckout)
			if err != nil {
				return err
			}
			event := CheckoutEvent{
				ID:           uuid.NewString(),
				Type:         domain.CheckoutEventCheckout,
				Timestamp:    u.now,
				Actor:        u.actor,
				Borrower:     borrower,
				ContactEmail: req.ContactEmail,
				Project:      req.Project,
				DueDate:      &due,
				Notes:        req.Notes,
			}
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				now := u.now
				dueBack := due
				it.Status = next
				it.CheckedOutTo = &borrower
				it.CheckedOutDate = &now
				it.DueBack = &dueBack
				it.CheckoutCount++
				it.CheckoutHistory = append(it.CheckoutHistory, event.Clone())
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Checked out %s to %s, due %s", label(updated), borrower, due.Format(time.DateOnly))
			u.audit("checkout", itemID, desc, "")
			u.change("checkout", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			u.notify(noticeCheckout, NotificationPayload{
				ItemID:       itemID,
				ItemName:     updated.Name,
				Borrower:     borrower,
				ContactEmail: req.ContactEmail,
				Project:      req.Project,
				DueDate:      &due,
			})
			return nil
		})
		return itemID, res, err
	})
	return updated, res, err
}

// Checkin returns a checked-out item. Reported damage moves it to
// needs-attention and adds a note with the description.
func (s *Service) Checkin(ctx context.Context, itemID string, req CheckinRequest) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "checkin", func(ctx context.Context) (string, Result, error) {
		if req.Condition != "" && !req.Condition.Valid() {
			return itemID, Result{}, invalid("condition", "unknown condition %q", req.Condition)
		}
		event := EventCheckin
		if req.DamageReported {
			event = EventCheckinDamaged
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			next, err := NextStatus(before.Status, event)
			if err != nil {
				return err
			}
			last, _ := lastCheckout(before)
			borrower := last.Borrower
			if borrower == "" && before.CheckedOutTo != nil {
				borrower = *before.CheckedOutTo
			}
			entry := CheckoutEvent{
				ID:                uuid.NewString(),
				Type:              domain.CheckoutEventCheckin,
				Timestamp:         u.now,
				Actor:             u.actor,
				Borrower:          borrower,
				ContactEmail:      last.ContactEmail,
				Project:           last.Project,
				Condition:         req.Condition,
				DamageReported:    req.DamageReported,
				DamageDescription: req.DamageDescription,
				Notes:             req.Notes,
			}
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				it.Status = next
				it.CheckedOutTo, it.CheckedOutDate, it.DueBack = nil, nil, nil
				if req.Condition != "" {
					it.Condition = req.Condition
				}
				it.CheckoutHistory = append(it.CheckoutHistory, entry)
				if req.DamageReported {
					it.Notes = append(it.Notes, Note{
						ID:        uuid.NewString(),
						Text:      damageNote(req.DamageDescription),
						Author:    u.actor,
						CreatedAt: u.now,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Checked in %s from %s", label(updated), borrower)
			if req.DamageReported {
				desc += ", damage reported"
			}
			u.audit("checkin", itemID, desc, "")
			u.change("checkin", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			u.notify(noticeCheckin, NotificationPayload{
				ItemID:         itemID,
				ItemName:       updated.Name,
				Borrower:       borrower,
				ContactEmail:   last.ContactEmail,
				Project:        last.Project,
				Condition:      updated.Condition,
				DamageReported: req.DamageReported,
			})
			return nil
		})
		return itemID, res, err
	})
	return updated, res, err
}

func damageNote(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return "Damage reported at checkin"
	}
	return "Damage reported: " + description
}

// lastCheckout finds the most recent checkout entry in an item's history.
func lastCheckout(item Item) (CheckoutEvent, bool) {
	for i := len(item.CheckoutHistory) - 1; i >= 0; i-- {
		if item.CheckoutHistory[i].Type == domain.CheckoutEventCheckout {
			return item.CheckoutHistory[i], true
		}
	}
	return CheckoutEvent{}, false
}
