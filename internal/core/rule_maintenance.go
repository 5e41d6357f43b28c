package core

import (
	"context"
	"fmt"

	"gearcore/pkg/domain"
)

// NewMaintenanceIntegrityRule blocks commits that delete maintenance records,
// store unknown types or statuses, or move a record through an illegal
// status transition.
func NewMaintenanceIntegrityRule() domain.Rule {
	return maintenanceIntegrityRule{}
}

type maintenanceIntegrityRule struct{}

func (maintenanceIntegrityRule) Name() string { return "maintenance_integrity" }

func (r maintenanceIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after := itemsOf(change)
		if after == nil {
			continue
		}
		seen := make(map[string]domain.MaintenanceRecord, len(after.MaintenanceHistory))
		for _, m := range after.MaintenanceHistory {
			switch {
			case m.ID == "":
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance record without id on item %s", after.ID))
			case !m.Type.Valid():
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance %s has invalid type %s", m.ID, m.Type))
			case !m.Status.Valid():
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance %s has invalid status %s", m.ID, m.Status))
			case m.Status == domain.MaintenanceCompleted && m.CompletedDate == nil:
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance %s is completed without a completion date", m.ID))
			}
			if _, dup := seen[m.ID]; dup && m.ID != "" {
				res.Violations = append(res.Violations, r.violation(after.ID, "duplicate maintenance id %s", m.ID))
			}
			seen[m.ID] = m
		}
		if before == nil {
			continue
		}
		for _, old := range before.MaintenanceHistory {
			current, ok := seen[old.ID]
			if !ok {
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance %s was deleted from item %s", old.ID, after.ID))
				continue
			}
			if !old.Status.CanTransitionTo(current.Status) {
				res.Violations = append(res.Violations, r.violation(after.ID, "maintenance %s cannot move from %s to %s", old.ID, old.Status, current.Status))
			}
		}
	}
	return res, nil
}

func (maintenanceIntegrityRule) violation(itemID, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     "maintenance_integrity",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   domain.EntityMaintenance,
		EntityID: itemID,
	}
}
