package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gearcore/internal/blob"
	"gearcore/internal/imaging"
	"gearcore/pkg/domain"
)

const (
	entityNote     EntityType = "note"
	entityReminder EntityType = "reminder"
	entityImage    EntityType = "image"
)

func label(item Item) string {
	if item.Name == "" {
		return item.ID
	}
	return fmt.Sprintf("%s (%s)", item.Name, item.ID)
}

func validateDescriptive(item Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return invalid("name", "is required")
	}
	if strings.TrimSpace(item.Category) == "" {
		return invalid("category", "is required")
	}
	if item.Condition != "" && !item.Condition.Valid() {
		return invalid("condition", "unknown condition %q", item.Condition)
	}
	if item.Quantity < 0 {
		return invalid("quantity", "cannot be negative")
	}
	if item.ReorderPoint < 0 {
		return invalid("reorder_point", "cannot be negative")
	}
	return nil
}

// CreateItem stores a new item. Without an id the next code for the item's
// category is assigned. Lifecycle fields are reset; use the dedicated
// operations to check out, reserve, compose or annotate the item.
func (s *Service) CreateItem(ctx context.Context, item Item) (Item, Result, error) {
	var created Item
	res, err := s.run(ctx, "create_item", func(ctx context.Context) (string, Result, error) {
		if err := validateDescriptive(item); err != nil {
			return item.ID, Result{}, err
		}
		if item.Status == "" {
			item.Status = StatusAvailable
		}
		if !item.Status.Stored() || item.Status == StatusCheckedOut {
			return item.ID, Result{}, invalid("status", "cannot create an item as %s", item.Status)
		}
		if item.Condition == "" {
			item.Condition = domain.ConditionGood
		}
		if item.IsKit && item.KitType == "" {
			item.KitType = defaultKitType
		}
		item.CheckedOutTo, item.CheckedOutDate, item.DueBack = nil, nil, nil
		item.CheckoutCount = 0
		item.CheckoutHistory = nil
		item.Reservations = nil
		item.MaintenanceHistory = nil
		item.Notes = nil
		item.Reminders = nil
		item.ChildItemIDs = nil
		item.ParentKitID = nil

		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			if item.ID == "" {
				item.ID = nextCode(s.policy.Prefix(item.Category), tx.Snapshot().ListItems())
			} else if _, exists := tx.FindItem(item.ID); exists {
				return invalid("id", "item %s already exists", item.ID)
			}
			for _, acc := range item.RequiredAccessories {
				if acc == item.ID {
					return invalid("required_accessories", "an item cannot require itself")
				}
				if _, ok := tx.FindItem(acc); !ok {
					return ErrNotFound{Entity: EntityItem, ID: acc}
				}
			}
			var err error
			created, err = tx.CreateItem(item)
			if err != nil {
				return err
			}
			u.audit("item_created", created.ID, "Created "+label(created), "")
			u.change("item_created", EntityItem, created.ID, created.ID, "Created "+label(created), nil, created)
			u.saveItem(MutationCreate, created)
			return nil
		})
		return item.ID, res, err
	})
	return created, res, err
}

// restoreProtected copies lifecycle fields from before onto an edited item.
func restoreProtected(edited *Item, before Item) {
	edited.ID = before.ID
	edited.CreatedAt = before.CreatedAt
	edited.UpdatedAt = before.UpdatedAt
	edited.Status = before.Status
	edited.ImageRef = before.ImageRef
	edited.IsKit = before.IsKit
	edited.ChildItemIDs = before.ChildItemIDs
	edited.ParentKitID = before.ParentKitID
	edited.RequiredAccessories = before.RequiredAccessories
	edited.CheckedOutTo = before.CheckedOutTo
	edited.CheckedOutDate = before.CheckedOutDate
	edited.DueBack = before.DueBack
	edited.CheckoutCount = before.CheckoutCount
	edited.CheckoutHistory = before.CheckoutHistory
	edited.Reservations = before.Reservations
	edited.MaintenanceHistory = before.MaintenanceHistory
	edited.Notes = before.Notes
	edited.Reminders = before.Reminders
	if !edited.IsKit {
		edited.KitType = before.KitType
	}
}

// UpdateItem applies descriptive edits. Changes to lifecycle fields made by
// the mutator are discarded. An edit that changes nothing records nothing.
func (s *Service) UpdateItem(ctx context.Context, id string, mutator func(*Item) error) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "update_item", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, id)
			if err != nil {
				return err
			}
			working := before.Clone()
			if err := mutator(&working); err != nil {
				return err
			}
			restoreProtected(&working, before)
			if err := validateDescriptive(working); err != nil {
				return err
			}
			diff := diffFields(before, working)
			if len(diff) == 0 {
				updated = before
				return nil
			}
			updated, err = tx.UpdateItem(id, func(it *Item) error {
				*it = working
				return nil
			})
			if err != nil {
				return err
			}
			fields := make([]string, len(diff))
			for i, c := range diff {
				fields[i] = c.Field
			}
			desc := fmt.Sprintf("Updated %s: %s", label(updated), strings.Join(fields, ", "))
			u.audit("item_updated", id, desc, "")
			u.change("item_updated", EntityItem, id, id, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return id, res, err
	})
	return updated, res, err
}

// SetItemStatus is the manual status edit. Overdue is derived and checked-out
// is only reachable through Checkout, so both are rejected. Leaving
// checked-out clears the checkout fields.
func (s *Service) SetItemStatus(ctx context.Context, id string, status ItemStatus) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "set_item_status", func(ctx context.Context) (string, Result, error) {
		switch {
		case status == StatusOverdue:
			return id, Result{}, invalid("status", "overdue is derived from the due date")
		case status == StatusCheckedOut:
			return id, Result{}, invalid("status", "use checkout to check an item out")
		case !status.Stored():
			return id, Result{}, invalid("status", "unknown status %q", status)
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, id)
			if err != nil {
				return err
			}
			if before.Status == status {
				updated = before
				return nil
			}
			updated, err = tx.UpdateItem(id, func(it *Item) error {
				it.Status = status
				it.CheckedOutTo, it.CheckedOutDate, it.DueBack = nil, nil, nil
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Status of %s changed from %s to %s", label(updated), before.Status, status)
			u.audit("status_changed", id, desc, "")
			u.change("status_changed", EntityItem, id, id, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return id, res, err
	})
	return updated, res, err
}

// DeleteItem removes an item after confirmation. Kit links are detached and
// other items stop requiring it as an accessory. The audit entry keeps the
// deleted item as JSON.
func (s *Service) DeleteItem(ctx context.Context, id string, confirmed bool) (Result, error) {
	var imageRef string
	res, err := s.run(ctx, "delete_item", func(ctx context.Context) (string, Result, error) {
		if !confirmed {
			return id, Result{}, ErrConfirmationRequired
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, id)
			if err != nil {
				return err
			}
			imageRef = before.ImageRef
			touched := make(map[string]struct{})
			if before.ParentKitID != nil {
				if err := tx.DetachKitChild(*before.ParentKitID, id); err != nil {
					return err
				}
				touched[*before.ParentKitID] = struct{}{}
			}
			children, err := tx.DetachAllKitChildren(id)
			if err != nil {
				return err
			}
			for _, child := range children {
				touched[child] = struct{}{}
			}
			for _, other := range tx.Snapshot().ListItems() {
				if other.ID == id || !other.HasRequiredAccessory(id) {
					continue
				}
				if _, err := tx.UpdateItem(other.ID, func(it *Item) error {
					it.RequiredAccessories = without(it.RequiredAccessories, id)
					return nil
				}); err != nil {
					return err
				}
				touched[other.ID] = struct{}{}
			}
			if err := tx.DeleteItem(id); err != nil {
				return err
			}

			content, err := json.Marshal(before)
			if err != nil {
				return fmt.Errorf("encode deleted item: %w", err)
			}
			desc := "Deleted " + label(before)
			u.audit("item_deleted", id, desc, string(content))
			u.change("item_deleted", EntityItem, id, id, desc, before, nil)
			for _, r := range before.Reservations {
				u.drop(EntityReservation, r.ID)
			}
			for _, m := range before.MaintenanceHistory {
				u.drop(EntityMaintenance, m.ID)
			}
			u.drop(EntityItem, id)
			for _, otherID := range sortedKeys(touched) {
				if other, ok := tx.FindItem(otherID); ok {
					u.saveItem(MutationUpdate, other)
				}
			}
			return nil
		})
		return id, res, err
	})
	if err == nil && imageRef != "" && s.images != nil {
		if _, derr := s.images.Delete(ctx, imageRef); derr != nil {
			s.logger.Warn("delete item image", "item_id", id, "key", imageRef, "error", derr)
		}
	}
	return res, err
}

// AddNote appends a note authored by the current actor.
func (s *Service) AddNote(ctx context.Context, itemID, text string) (Note, Result, error) {
	var note Note
	res, err := s.run(ctx, "add_note", func(ctx context.Context) (string, Result, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return itemID, Result{}, invalid("text", "is required")
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			if _, err := loadItem(tx, itemID); err != nil {
				return err
			}
			note = Note{ID: uuid.NewString(), Text: text, Author: u.actor, CreatedAt: u.now}
			updated, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Notes = append(it.Notes, note)
				return nil
			})
			if err != nil {
				return err
			}
			desc := "Added note to " + label(updated)
			u.audit("note_added", itemID, desc, "")
			u.change("note_added", entityNote, note.ID, itemID, desc, nil, note)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return note, res, err
}

// DeleteNote removes a note after confirmation. Its text survives in the
// audit entry's Content.
func (s *Service) DeleteNote(ctx context.Context, itemID, noteID string, confirmed bool) (Result, error) {
	return s.run(ctx, "delete_note", func(ctx context.Context) (string, Result, error) {
		if !confirmed {
			return itemID, Result{}, ErrConfirmationRequired
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx := -1
			for i, n := range before.Notes {
				if n.ID == noteID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrNotFound{Entity: entityNote, ID: noteID}
			}
			deleted := before.Notes[idx]
			updated, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Notes = append(it.Notes[:idx:idx], it.Notes[idx+1:]...)
				return nil
			})
			if err != nil {
				return err
			}
			desc := "Deleted note from " + label(updated)
			u.audit("note_deleted", itemID, desc, deleted.Text)
			u.change("note_deleted", entityNote, noteID, itemID, desc, deleted, nil)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
}

// AddReminder attaches a follow-up reminder to an item.
func (s *Service) AddReminder(ctx context.Context, itemID, text string, dueAt *time.Time) (Reminder, Result, error) {
	var reminder Reminder
	res, err := s.run(ctx, "add_reminder", func(ctx context.Context) (string, Result, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return itemID, Result{}, invalid("text", "is required")
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			if _, err := loadItem(tx, itemID); err != nil {
				return err
			}
			reminder = Reminder{ID: uuid.NewString(), Text: text, CreatedAt: u.now}
			if dueAt != nil {
				due := dueAt.UTC()
				reminder.DueAt = &due
			}
			updated, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Reminders = append(it.Reminders, reminder.Clone())
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Added reminder to %s: %s", label(updated), text)
			u.audit("reminder_added", itemID, desc, "")
			u.change("reminder_added", entityReminder, reminder.ID, itemID, desc, nil, reminder)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return reminder, res, err
}

// CompleteReminder marks a reminder done.
func (s *Service) CompleteReminder(ctx context.Context, itemID, reminderID string) (Reminder, Result, error) {
	var completed Reminder
	res, err := s.run(ctx, "complete_reminder", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx := -1
			for i, r := range before.Reminders {
				if r.ID == reminderID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrNotFound{Entity: entityReminder, ID: reminderID}
			}
			prior := before.Reminders[idx]
			if prior.Done {
				return invalid("reminder", "%s is already completed", reminderID)
			}
			completed = prior.Clone()
			completed.Done = true
			now := u.now
			completed.CompletedAt = &now
			updated, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Reminders[idx] = completed.Clone()
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Completed reminder on %s: %s", label(updated), prior.Text)
			u.audit("reminder_completed", itemID, desc, "")
			u.change("reminder_completed", entityReminder, reminderID, itemID, desc, prior, completed)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return completed, res, err
}

// AdjustQuantity changes the stock count of a quantity-tracked item.
func (s *Service) AdjustQuantity(ctx context.Context, itemID string, delta int) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "adjust_quantity", func(ctx context.Context) (string, Result, error) {
		if delta == 0 {
			return itemID, Result{}, invalid("delta", "must not be zero")
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			if !s.policy.IsQuantityTracked(before.Category) {
				return invalid("category", "%s is not quantity tracked", before.Category)
			}
			if before.Quantity+delta < 0 {
				return invalid("delta", "quantity of %s cannot go below zero", itemID)
			}
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				it.Quantity += delta
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Quantity of %s changed from %d to %d", label(updated), before.Quantity, updated.Quantity)
			u.audit("quantity_adjusted", itemID, desc, "")
			u.change("quantity_adjusted", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return updated, res, err
}

// AttachItemImage normalises a photo, stores it and points the item at it.
// The previous image is removed once the new reference is committed.
func (s *Service) AttachItemImage(ctx context.Context, itemID string, r io.Reader) (Item, Result, error) {
	var updated Item
	var previous string
	res, err := s.run(ctx, "attach_item_image", func(ctx context.Context) (string, Result, error) {
		if s.images == nil {
			return itemID, Result{}, ErrImagesDisabled
		}
		if _, ok := s.store.GetItem(itemID); !ok {
			return itemID, Result{}, ErrNotFound{Entity: EntityItem, ID: itemID}
		}
		photo, err := s.imaging.Process(r)
		if err != nil {
			if errors.Is(err, imaging.ErrUnsupportedFormat) {
				return itemID, Result{}, ValidationError{Field: "image", Message: err.Error(), Err: err}
			}
			return itemID, Result{}, fmt.Errorf("process image: %w", err)
		}
		key := fmt.Sprintf("items/%s/%s.jpg", itemID, uuid.NewString())
		if _, err := s.images.Put(ctx, key, bytes.NewReader(photo.Data), blob.PutOptions{
			ContentType: photo.MIME,
			Metadata:    map[string]string{"item_id": itemID, "source_mime": photo.SourceMIME},
		}); err != nil {
			return itemID, Result{}, fmt.Errorf("store image: %w", err)
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			previous = before.ImageRef
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				it.ImageRef = key
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Attached %dx%d image to %s", photo.Width, photo.Height, label(updated))
			u.audit("image_attached", itemID, desc, "")
			u.change("image_attached", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		if err != nil {
			if _, derr := s.images.Delete(ctx, key); derr != nil {
				s.logger.Warn("discard unreferenced image", "key", key, "error", derr)
			}
			previous = ""
		}
		return itemID, res, err
	})
	if err == nil && previous != "" {
		if _, derr := s.images.Delete(ctx, previous); derr != nil {
			s.logger.Warn("delete replaced image", "item_id", itemID, "key", previous, "error", derr)
		}
	}
	return updated, res, err
}

// ItemImage opens the stored photo of an item.
func (s *Service) ItemImage(ctx context.Context, itemID string) (blob.Info, io.ReadCloser, error) {
	key, err := s.imageKey(itemID)
	if err != nil {
		return blob.Info{}, nil, err
	}
	return s.images.Get(ctx, key)
}

// ItemImageURL returns a time-limited URL for the item's photo when the blob
// backend supports signing.
func (s *Service) ItemImageURL(ctx context.Context, itemID string, expiry time.Duration) (string, error) {
	key, err := s.imageKey(itemID)
	if err != nil {
		return "", err
	}
	return s.images.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

func (s *Service) imageKey(itemID string) (string, error) {
	if s.images == nil {
		return "", ErrImagesDisabled
	}
	item, ok := s.store.GetItem(itemID)
	if !ok {
		return "", ErrNotFound{Entity: EntityItem, ID: itemID}
	}
	if item.ImageRef == "" {
		return "", ErrNotFound{Entity: entityImage, ID: itemID}
	}
	return item.ImageRef, nil
}

// GetItem returns one item.
func (s *Service) GetItem(id string) (Item, error) {
	item, ok := s.store.GetItem(id)
	if !ok {
		return Item{}, ErrNotFound{Entity: EntityItem, ID: id}
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero fields match everything. Status is
// compared against the effective status, so StatusOverdue selects overdue
// items.
type ItemFilter struct {
	Category string
	Status   ItemStatus
	Location string
	KitsOnly bool
	LowStock bool
	Query    string
	Now      time.Time
}

// matchesStatus compares against the effective status, except that a
// checked-out filter also keeps overdue items: they are still out.
func matchesStatus(item Item, want ItemStatus, now time.Time) bool {
	if want == StatusCheckedOut {
		return item.Status == StatusCheckedOut
	}
	return EffectiveStatus(item, now) == want
}

// ListItems returns the items matching filter, ordered by id.
func (s *Service) ListItems(filter ItemFilter) []Item {
	now := filter.Now
	if now.IsZero() {
		now = s.now()
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []Item
	for _, item := range s.store.ListItems() {
		if filter.Category != "" && !strings.EqualFold(item.Category, filter.Category) {
			continue
		}
		if filter.Status != "" && !matchesStatus(item, filter.Status, now) {
			continue
		}
		if filter.Location != "" && !strings.EqualFold(item.Location, filter.Location) {
			continue
		}
		if filter.KitsOnly && !item.IsKit {
			continue
		}
		if filter.LowStock && !IsLowStock(item, s.policy) {
			continue
		}
		if query != "" && !matchesQuery(item, query) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesQuery(item Item, query string) bool {
	for _, field := range []string{item.ID, item.Name, item.Brand} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// OverdueItems lists checked-out items whose due date is before now.
func (s *Service) OverdueItems(now time.Time) []Item {
	return s.ListItems(ItemFilter{Status: StatusOverdue, Now: now})
}

// LowStockItems lists quantity-tracked items at or below their reorder point.
func (s *Service) LowStockItems() []Item {
	return s.ListItems(ItemFilter{LowStock: true})
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
