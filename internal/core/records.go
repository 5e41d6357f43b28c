package core

import (
	"encoding/json"
	"fmt"

	"gearcore/internal/infra/persistence/memory"
)

// Items are persisted without their reservations and maintenance records,
// which travel as records of their own keyed to the item through ParentID.
// ChildItemIDs is kept so kit membership survives a reload; ParentKitID is
// derived from it and dropped.
func itemRecord(item Item) (Record, error) {
	stored := item.Clone()
	stored.Reservations = nil
	stored.MaintenanceHistory = nil
	stored.ParentKitID = nil
	payload, err := json.Marshal(stored)
	if err != nil {
		return Record{}, fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	return Record{Entity: EntityItem, ID: item.ID, Payload: payload, UpdatedAt: item.UpdatedAt}, nil
}

func reservationRecord(r Reservation) (Record, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("encode reservation %s: %w", r.ID, err)
	}
	return Record{Entity: EntityReservation, ID: r.ID, ParentID: r.ItemID, Payload: payload, UpdatedAt: r.UpdatedAt}, nil
}

func maintenanceRecord(itemID string, m MaintenanceRecord) (Record, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Record{}, fmt.Errorf("encode maintenance %s: %w", m.ID, err)
	}
	return Record{Entity: EntityMaintenance, ID: m.ID, ParentID: itemID, Payload: payload, UpdatedAt: m.UpdatedAt}, nil
}

func auditRecord(a AuditEntry) (Record, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return Record{}, fmt.Errorf("encode audit entry %s: %w", a.ID, err)
	}
	return Record{Entity: EntityAuditEntry, ID: a.ID, ParentID: a.ItemID, Payload: payload, UpdatedAt: a.Timestamp}, nil
}

func changeRecord(c ChangeLogEntry) (Record, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return Record{}, fmt.Errorf("encode change entry %s: %w", c.ID, err)
	}
	return Record{Entity: EntityChangeEntry, ID: c.ID, ParentID: c.ItemID, Payload: payload, UpdatedAt: c.Timestamp}, nil
}

// hydration is the state rebuilt from gateway records.
type hydration struct {
	snapshot memory.Snapshot
	audits   []AuditEntry
	changes  []ChangeLogEntry
	orphans  int
}

// hydrate rebuilds store state and history from records in load order.
// Reservations and maintenance records whose item is gone, and kit children
// that no longer exist, are counted as orphans and dropped.
func hydrate(records []Record) (hydration, error) {
	h := hydration{snapshot: memory.Snapshot{Items: make(map[string]Item), Kits: make(map[string][]string)}}
	var reservations []Reservation
	type ownedMaintenance struct {
		itemID string
		record MaintenanceRecord
	}
	var maintenance []ownedMaintenance

	for _, rec := range records {
		switch rec.Entity {
		case EntityItem:
			var item Item
			if err := json.Unmarshal(rec.Payload, &item); err != nil {
				return hydration{}, fmt.Errorf("decode item %s: %w", rec.ID, err)
			}
			item.ID = rec.ID
			item.Reservations = nil
			item.MaintenanceHistory = nil
			item.ParentKitID = nil
			h.snapshot.Items[item.ID] = item
		case EntityReservation:
			var r Reservation
			if err := json.Unmarshal(rec.Payload, &r); err != nil {
				return hydration{}, fmt.Errorf("decode reservation %s: %w", rec.ID, err)
			}
			if r.ItemID == "" {
				r.ItemID = rec.ParentID
			}
			reservations = append(reservations, r)
		case EntityMaintenance:
			var m MaintenanceRecord
			if err := json.Unmarshal(rec.Payload, &m); err != nil {
				return hydration{}, fmt.Errorf("decode maintenance %s: %w", rec.ID, err)
			}
			maintenance = append(maintenance, ownedMaintenance{itemID: rec.ParentID, record: m})
		case EntityAuditEntry:
			var a AuditEntry
			if err := json.Unmarshal(rec.Payload, &a); err != nil {
				return hydration{}, fmt.Errorf("decode audit entry %s: %w", rec.ID, err)
			}
			h.audits = append(h.audits, a)
		case EntityChangeEntry:
			var c ChangeLogEntry
			if err := json.Unmarshal(rec.Payload, &c); err != nil {
				return hydration{}, fmt.Errorf("decode change entry %s: %w", rec.ID, err)
			}
			h.changes = append(h.changes, c)
		default:
			return hydration{}, fmt.Errorf("unknown record entity %q", rec.Entity)
		}
	}

	for _, r := range reservations {
		item, ok := h.snapshot.Items[r.ItemID]
		if !ok {
			h.orphans++
			continue
		}
		item.Reservations = append(item.Reservations, r)
		h.snapshot.Items[r.ItemID] = item
	}
	for _, m := range maintenance {
		item, ok := h.snapshot.Items[m.itemID]
		if !ok {
			h.orphans++
			continue
		}
		item.MaintenanceHistory = append(item.MaintenanceHistory, m.record)
		h.snapshot.Items[m.itemID] = item
	}
	for id, item := range h.snapshot.Items {
		if !item.IsKit || len(item.ChildItemIDs) == 0 {
			continue
		}
		var kids []string
		for _, child := range item.ChildItemIDs {
			if _, ok := h.snapshot.Items[child]; !ok {
				h.orphans++
				continue
			}
			kids = append(kids, child)
		}
		if len(kids) > 0 {
			h.snapshot.Kits[id] = kids
		}
	}
	return h, nil
}
