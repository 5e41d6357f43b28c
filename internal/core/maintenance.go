package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gearcore/pkg/domain"
)

func validateMaintenance(m MaintenanceRecord) error {
	switch {
	case !m.Type.Valid():
		return invalid("type", "unknown maintenance type %q", m.Type)
	case strings.TrimSpace(m.Description) == "":
		return invalid("description", "is required")
	case !m.Status.Valid():
		return invalid("status", "unknown maintenance status %q", m.Status)
	case m.Cost.IsNegative():
		return invalid("cost", "cannot be negative")
	}
	return nil
}

// AddMaintenance appends a scheduled maintenance record to an item. Later
// states are reached through TransitionMaintenance.
func (s *Service) AddMaintenance(ctx context.Context, itemID string, record MaintenanceRecord) (MaintenanceRecord, Result, error) {
	var created MaintenanceRecord
	res, err := s.run(ctx, "add_maintenance", func(ctx context.Context) (string, Result, error) {
		if record.Status == "" {
			record.Status = domain.MaintenanceScheduled
		}
		if err := validateMaintenance(record); err != nil {
			return itemID, Result{}, err
		}
		if record.Status != domain.MaintenanceScheduled {
			return itemID, Result{}, invalid("status", "new records start %s, got %s", domain.MaintenanceScheduled, record.Status)
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			if _, err := loadItem(tx, itemID); err != nil {
				return err
			}
			created = record.Clone()
			created.ID = uuid.NewString()
			created.CreatedAt = u.now
			created.UpdatedAt = u.now
			created.CompletedDate = nil
			if created.PerformedBy == "" {
				created.PerformedBy = u.actor
			}
			updated, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.MaintenanceHistory = append(it.MaintenanceHistory, created.Clone())
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Added %s maintenance to %s: %s", created.Type, label(updated), created.Description)
			u.audit("maintenance_added", itemID, desc, "")
			u.change("maintenance_added", EntityMaintenance, created.ID, itemID, desc, nil, created)
			u.saveMaintenance(MutationCreate, itemID, created)
			u.saveItem(MutationUpdate, updated)
			return nil
		})
		return itemID, res, err
	})
	return created, res, err
}

// UpdateMaintenance replaces a record by id with the mutator's edit. Status
// changes follow the maintenance state machine.
func (s *Service) UpdateMaintenance(ctx context.Context, itemID, recordID string, mutator func(*MaintenanceRecord) error) (MaintenanceRecord, Result, error) {
	return s.changeMaintenance(ctx, "update_maintenance", itemID, recordID, mutator)
}

// TransitionMaintenance moves a record to status. CompletedDate is stamped
// when the record enters completed.
func (s *Service) TransitionMaintenance(ctx context.Context, itemID, recordID string, status MaintenanceStatus) (MaintenanceRecord, Result, error) {
	return s.changeMaintenance(ctx, "transition_maintenance", itemID, recordID, func(m *MaintenanceRecord) error {
		if !status.Valid() {
			return invalid("status", "unknown maintenance status %q", status)
		}
		m.Status = status
		return nil
	})
}

func (s *Service) changeMaintenance(ctx context.Context, op, itemID, recordID string, mutator func(*MaintenanceRecord) error) (MaintenanceRecord, Result, error) {
	var updated MaintenanceRecord
	res, err := s.run(ctx, op, func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			item, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx := -1
			for i, m := range item.MaintenanceHistory {
				if m.ID == recordID {
					idx = i
					break
				}
			}
			if idx < 0 {
				return ErrNotFound{Entity: EntityMaintenance, ID: recordID}
			}
			before := item.MaintenanceHistory[idx]
			working := before.Clone()
			if err := mutator(&working); err != nil {
				return err
			}
			working.ID = before.ID
			working.CreatedAt = before.CreatedAt
			working.UpdatedAt = before.UpdatedAt
			if err := validateMaintenance(working); err != nil {
				return err
			}
			statusChanged := working.Status != before.Status
			if statusChanged {
				if !before.Status.CanTransitionTo(working.Status) {
					return invalidTransition(string(before.Status), string(working.Status))
				}
				if working.Status == domain.MaintenanceCompleted {
					now := u.now
					working.CompletedDate = &now
				}
			}
			if working.Status != domain.MaintenanceCompleted {
				working.CompletedDate = nil
			}
			if len(diffFields(before, working)) == 0 {
				updated = before
				return nil
			}
			working.UpdatedAt = u.now
			owner, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.MaintenanceHistory[idx] = working.Clone()
				return nil
			})
			if err != nil {
				return err
			}
			updated = working
			typ := "maintenance_updated"
			desc := fmt.Sprintf("Updated maintenance %s on %s", recordID, label(owner))
			if statusChanged {
				typ = "maintenance_status_changed"
				desc = fmt.Sprintf("Maintenance %s on %s moved from %s to %s", recordID, label(owner), before.Status, working.Status)
			}
			u.audit(typ, itemID, desc, "")
			u.change(typ, EntityMaintenance, recordID, itemID, desc, before, updated)
			u.saveMaintenance(MutationUpdate, itemID, updated)
			u.saveItem(MutationUpdate, owner)
			return nil
		})
		return recordID, res, err
	})
	return updated, res, err
}

// MaintenanceForItem returns an item's maintenance history in order.
func (s *Service) MaintenanceForItem(itemID string) ([]MaintenanceRecord, error) {
	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	return item.MaintenanceHistory, nil
}

// MaintenanceDue is an open maintenance record whose scheduled date has come.
type MaintenanceDue struct {
	ItemID string
	Record MaintenanceRecord
}

// DueMaintenance lists scheduled or in-progress records scheduled at or
// before now, earliest first.
func (s *Service) DueMaintenance(now time.Time) []MaintenanceDue {
	var out []MaintenanceDue
	for _, item := range s.store.ListItems() {
		for _, m := range item.MaintenanceHistory {
			if m.Status != domain.MaintenanceScheduled && m.Status != domain.MaintenanceInProgress {
				continue
			}
			if m.ScheduledDate == nil || m.ScheduledDate.After(now) {
				continue
			}
			out = append(out, MaintenanceDue{ItemID: item.ID, Record: m})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.ScheduledDate.Before(*out[j].Record.ScheduledDate)
	})
	return out
}
