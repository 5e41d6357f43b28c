package core

import (
	"context"
	"fmt"

	"gearcore/pkg/domain"
)

// NewKitCompositionRule blocks commits that leave a dangling or nested kit relation.
func NewKitCompositionRule() domain.Rule {
	return kitCompositionRule{}
}

type kitCompositionRule struct{}

func (kitCompositionRule) Name() string { return "kit_composition" }

func (r kitCompositionRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, id := range changedIDs(changes) {
		current, ok := view.FindItem(id)
		if !ok {
			continue
		}
		if current.IsKit && current.ParentKitID != nil {
			res.Violations = append(res.Violations, r.violation(id, "kit %s is nested inside %s", id, *current.ParentKitID))
		}
		if !current.IsKit && len(current.ChildItemIDs) > 0 {
			res.Violations = append(res.Violations, r.violation(id, "item %s has children but is not a kit", id))
		}
		for _, childID := range current.ChildItemIDs {
			child, ok := view.FindItem(childID)
			switch {
			case !ok:
				res.Violations = append(res.Violations, r.violation(id, "kit %s references missing child %s", id, childID))
			case child.IsKit:
				res.Violations = append(res.Violations, r.violation(id, "kit %s contains kit %s", id, childID))
			case child.ParentKitID == nil || *child.ParentKitID != id:
				res.Violations = append(res.Violations, r.violation(id, "child %s does not point back to kit %s", childID, id))
			}
		}
		if current.ParentKitID != nil {
			parent, ok := view.FindItem(*current.ParentKitID)
			if !ok || !parent.IsKit {
				res.Violations = append(res.Violations, r.violation(id, "item %s points to missing kit %s", id, *current.ParentKitID))
			}
		}
	}
	return res, nil
}

func (kitCompositionRule) violation(id, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     "kit_composition",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   domain.EntityItem,
		EntityID: id,
	}
}
