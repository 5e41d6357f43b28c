package memory

import (
	"fmt"
	"time"

	"gearcore/pkg/domain"
)

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindItem exposes item lookup within the transaction scope.
func (tx *transaction) FindItem(id string) (Item, bool) {
	item, ok := tx.state.items[id]
	if !ok {
		return Item{}, false
	}
	return tx.state.decorate(item), true
}

// CreateItem stores a new item. Composition projections on the input are ignored.
func (tx *transaction) CreateItem(item Item) (Item, error) {
	if item.ID == "" {
		item.ID = tx.store.newID()
	}
	if _, exists := tx.state.items[item.ID]; exists {
		return Item{}, fmt.Errorf("item %q already exists", item.ID)
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	tx.state.items[item.ID] = strip(item)
	created := tx.state.decorate(tx.state.items[item.ID])
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: created})
	return created.Clone(), nil
}

// UpdateItem mutates an item using the provided mutator function.
func (tx *transaction) UpdateItem(id string, mutator func(*Item) error) (Item, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return Item{}, fmt.Errorf("item %q not found", id)
	}
	before := tx.state.decorate(current)
	working := before.Clone()
	if err := mutator(&working); err != nil {
		return Item{}, err
	}
	working.ID = id
	working.CreatedAt = before.CreatedAt
	working.UpdatedAt = tx.now
	tx.state.items[id] = strip(working)
	after := tx.state.decorate(tx.state.items[id])
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: after})
	return after.Clone(), nil
}

// DeleteItem removes an item and every kit link that involves it. The
// counterpart items of those links are recorded as updated.
func (tx *transaction) DeleteItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return fmt.Errorf("item %q not found", id)
	}
	before := tx.state.decorate(current)
	related := append([]string(nil), before.ChildItemIDs...)
	if before.ParentKitID != nil {
		related = append(related, *before.ParentKitID)
	}
	priors := tx.capture(related)

	tx.state.kits.Remove(id)
	delete(tx.state.items, id)
	tx.touch(related, priors)
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: before})
	return nil
}

// AttachKitChild appends childID to kitID's children.
func (tx *transaction) AttachKitChild(kitID, childID string) error {
	kit, ok := tx.state.items[kitID]
	if !ok {
		return fmt.Errorf("item %q not found", kitID)
	}
	child, ok := tx.state.items[childID]
	if !ok {
		return fmt.Errorf("item %q not found", childID)
	}
	if !kit.IsKit {
		return fmt.Errorf("item %q is not a kit", kitID)
	}
	if child.IsKit {
		return fmt.Errorf("%w: %q is a kit", domain.ErrNestedKit, childID)
	}
	ids := []string{kitID, childID}
	priors := tx.capture(ids)
	if err := tx.state.kits.Attach(kitID, childID); err != nil {
		return err
	}
	tx.touch(ids, priors)
	return nil
}

// DetachKitChild removes childID from kitID.
func (tx *transaction) DetachKitChild(kitID, childID string) error {
	if _, ok := tx.state.items[kitID]; !ok {
		return fmt.Errorf("item %q not found", kitID)
	}
	ids := []string{kitID, childID}
	priors := tx.capture(ids)
	if !tx.state.kits.Detach(kitID, childID) {
		return fmt.Errorf("item %q is not a child of kit %q", childID, kitID)
	}
	tx.touch(ids, priors)
	return nil
}

// DetachAllKitChildren removes every child of kitID and returns their ids.
func (tx *transaction) DetachAllKitChildren(kitID string) ([]string, error) {
	if _, ok := tx.state.items[kitID]; !ok {
		return nil, fmt.Errorf("item %q not found", kitID)
	}
	children := tx.state.kits.Children(kitID)
	if len(children) == 0 {
		return nil, nil
	}
	ids := append([]string{kitID}, children...)
	priors := tx.capture(ids)
	tx.state.kits.DetachAll(kitID)
	tx.touch(ids, priors)
	return children, nil
}

// capture returns decorated copies of the given items before a relation change.
func (tx *transaction) capture(ids []string) map[string]Item {
	out := make(map[string]Item, len(ids))
	for _, id := range ids {
		if item, ok := tx.state.items[id]; ok {
			out[id] = tx.state.decorate(item)
		}
	}
	return out
}

// touch stamps UpdatedAt on items whose projections changed and records the
// update so rules see both sides of the relation.
func (tx *transaction) touch(ids []string, priors map[string]Item) {
	for _, id := range ids {
		before, ok := priors[id]
		if !ok {
			continue
		}
		stored, ok := tx.state.items[id]
		if !ok {
			continue
		}
		stored.UpdatedAt = tx.now
		tx.state.items[id] = stored
		after := tx.state.decorate(stored)
		tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: after})
	}
}
