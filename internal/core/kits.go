package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gearcore/pkg/domain"
)

const defaultKitType = "kit"

// LinkBatch reports the outcome of attaching several items at once.
type LinkBatch struct {
	Added   []string
	Skipped []Skipped
}

// ConvertToKit turns an item into a container. The change is one-way and an
// item that sits inside a kit cannot become one.
func (s *Service) ConvertToKit(ctx context.Context, itemID, kitType string) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "convert_to_kit", func(ctx context.Context) (string, Result, error) {
		kitType = strings.TrimSpace(kitType)
		if kitType == "" {
			kitType = defaultKitType
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			if before.IsKit {
				return invalid("item", "%s is already a kit", itemID)
			}
			if before.ParentKitID != nil {
				return ValidationError{Field: "item", Message: fmt.Sprintf("%s belongs to kit %s", itemID, *before.ParentKitID), Err: domain.ErrNestedKit}
			}
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				it.IsKit = true
				it.KitType = kitType
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Converted %s to %s", label(updated), kitType)
			u.audit("kit_converted", itemID, desc, "")
			u.change("kit_converted", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return updated, res, err
}

func (s *Service) loadKit(kitID string) (Item, error) {
	kit, err := s.GetItem(kitID)
	if err != nil {
		return Item{}, err
	}
	if !kit.IsKit {
		return Item{}, invalid("kit_id", "%s is not a kit", kitID)
	}
	return kit, nil
}

// AddChildren attaches items to a kit in order, one transaction per child.
// Children that are kits, missing, already in a kit or the kit itself are
// skipped and reported.
func (s *Service) AddChildren(ctx context.Context, kitID string, childIDs []string) (LinkBatch, error) {
	var batch LinkBatch
	_, err := s.run(ctx, "add_kit_children", func(ctx context.Context) (string, Result, error) {
		targets := dedupe(childIDs)
		if len(targets) == 0 {
			return kitID, Result{}, invalid("child_ids", "at least one child is required")
		}
		if _, err := s.loadKit(kitID); err != nil {
			return kitID, Result{}, err
		}
		var combined Result
		for _, childID := range targets {
			res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
				before, err := loadItem(tx, kitID)
				if err != nil {
					return err
				}
				if childID == kitID {
					return domain.ErrSelfContainment
				}
				child, err := loadItem(tx, childID)
				if err != nil {
					return err
				}
				if child.IsKit {
					return fmt.Errorf("%w: %s is a kit", domain.ErrNestedKit, childID)
				}
				if child.ParentKitID != nil {
					return fmt.Errorf("%w: %s is in %s", domain.ErrAlreadyInKit, childID, *child.ParentKitID)
				}
				if err := tx.AttachKitChild(kitID, childID); err != nil {
					return err
				}
				kit, _ := tx.FindItem(kitID)
				child, _ = tx.FindItem(childID)
				desc := fmt.Sprintf("Added %s to kit %s", label(child), label(kit))
				u.audit("kit_child_added", kitID, desc, "")
				u.change("kit_child_added", EntityItem, kitID, kitID, desc, before, kit)
				u.saveItem(MutationUpdate, kit)
				u.saveItem(MutationUpdate, child)
				return nil
			})
			if err != nil {
				s.logger.Warn("kit child skipped", "kit_id", kitID, "child_id", childID, "error", err)
				batch.Skipped = append(batch.Skipped, Skipped{ID: childID, Reason: err.Error()})
				continue
			}
			combined.Merge(res)
			batch.Added = append(batch.Added, childID)
		}
		return kitID, combined, nil
	})
	return batch, err
}

// RemoveChild detaches one child from a kit.
func (s *Service) RemoveChild(ctx context.Context, kitID, childID string) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "remove_kit_child", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, kitID)
			if err != nil {
				return err
			}
			child, err := loadItem(tx, childID)
			if err != nil {
				return err
			}
			if child.ParentKitID == nil || *child.ParentKitID != kitID {
				return invalid("child_id", "%s is not in kit %s", childID, kitID)
			}
			if err := tx.DetachKitChild(kitID, childID); err != nil {
				return err
			}
			updated, _ = tx.FindItem(kitID)
			child, _ = tx.FindItem(childID)
			desc := fmt.Sprintf("Removed %s from kit %s", label(child), label(updated))
			u.audit("kit_child_removed", kitID, desc, "")
			u.change("kit_child_removed", EntityItem, kitID, kitID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			u.saveItem(MutationUpdate, child)
			return nil
		})
		return kitID, res, err
	})
	return updated, res, err
}

// ClearChildren detaches every child from a kit. The kit stays a kit.
func (s *Service) ClearChildren(ctx context.Context, kitID string) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "clear_kit_children", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, kitID)
			if err != nil {
				return err
			}
			if !before.IsKit {
				return invalid("kit_id", "%s is not a kit", kitID)
			}
			removed, err := tx.DetachAllKitChildren(kitID)
			if err != nil {
				return err
			}
			updated, _ = tx.FindItem(kitID)
			if len(removed) == 0 {
				return nil
			}
			desc := fmt.Sprintf("Cleared kit %s: %s", label(updated), strings.Join(removed, ", "))
			u.audit("kit_cleared", kitID, desc, "")
			u.change("kit_cleared", EntityItem, kitID, kitID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			for _, id := range removed {
				if child, ok := tx.FindItem(id); ok {
					u.saveItem(MutationUpdate, child)
				}
			}
			return nil
		})
		return kitID, res, err
	})
	return updated, res, err
}

// AddRequiredAccessories links accessories an item needs to be usable. The
// link is advisory and one-directional. Each accessory is applied on its own;
// self links, missing items and existing links are skipped.
func (s *Service) AddRequiredAccessories(ctx context.Context, itemID string, accessoryIDs []string) (LinkBatch, error) {
	var batch LinkBatch
	_, err := s.run(ctx, "add_required_accessories", func(ctx context.Context) (string, Result, error) {
		targets := dedupe(accessoryIDs)
		if len(targets) == 0 {
			return itemID, Result{}, invalid("accessory_ids", "at least one accessory is required")
		}
		if _, err := s.GetItem(itemID); err != nil {
			return itemID, Result{}, err
		}
		var combined Result
		for _, accID := range targets {
			res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
				before, err := loadItem(tx, itemID)
				if err != nil {
					return err
				}
				if accID == itemID {
					return errors.New("an item cannot require itself")
				}
				acc, err := loadItem(tx, accID)
				if err != nil {
					return err
				}
				if before.HasRequiredAccessory(accID) {
					return fmt.Errorf("%s is already required", accID)
				}
				updated, err := tx.UpdateItem(itemID, func(it *Item) error {
					it.RequiredAccessories = append(it.RequiredAccessories, accID)
					return nil
				})
				if err != nil {
					return err
				}
				desc := fmt.Sprintf("%s now requires %s", label(updated), label(acc))
				u.audit("accessory_added", itemID, desc, "")
				u.change("accessory_added", EntityItem, itemID, itemID, desc, before, updated)
				u.saveItem(MutationUpdate, updated)
				return nil
			})
			if err != nil {
				s.logger.Warn("accessory skipped", "item_id", itemID, "accessory_id", accID, "error", err)
				batch.Skipped = append(batch.Skipped, Skipped{ID: accID, Reason: err.Error()})
				continue
			}
			combined.Merge(res)
			batch.Added = append(batch.Added, accID)
		}
		return itemID, combined, nil
	})
	return batch, err
}

// RemoveRequiredAccessory drops one accessory link.
func (s *Service) RemoveRequiredAccessory(ctx context.Context, itemID, accessoryID string) (Item, Result, error) {
	var updated Item
	res, err := s.run(ctx, "remove_required_accessory", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			before, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			if !before.HasRequiredAccessory(accessoryID) {
				return invalid("accessory_id", "%s is not required by %s", accessoryID, itemID)
			}
			updated, err = tx.UpdateItem(itemID, func(it *Item) error {
				it.RequiredAccessories = without(it.RequiredAccessories, accessoryID)
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("%s no longer requires %s", label(updated), accessoryID)
			u.audit("accessory_removed", itemID, desc, "")
			u.change("accessory_removed", EntityItem, itemID, itemID, desc, before, updated)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return updated, res, err
}
