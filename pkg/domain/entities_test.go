package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestItemCloneDeepCopiesCollections(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	borrower := "Alice"
	item := Item{
		Base:            Base{ID: "CA-001"},
		Specs:           map[string]string{"mount": "EF"},
		CheckedOutTo:    &borrower,
		DueBack:         &due,
		CheckoutHistory: []CheckoutEvent{{ID: "e1", DueDate: &due}},
		Reservations:    []Reservation{{ID: "r1", Notes: []ThreadNote{{ID: "n1"}}}},
		MaintenanceHistory: []MaintenanceRecord{
			{ID: "m1", CompletedDate: &due},
		},
		Reminders: []Reminder{{ID: "rem", DueAt: &due}},
	}
	cp := item.Clone()
	cp.Specs["mount"] = "RF"
	*cp.CheckedOutTo = "Bob"
	*cp.DueBack = due.Add(time.Hour)
	*cp.CheckoutHistory[0].DueDate = due.Add(time.Hour)
	cp.Reservations[0].Notes[0].Text = "changed"
	*cp.MaintenanceHistory[0].CompletedDate = due.Add(time.Hour)
	*cp.Reminders[0].DueAt = due.Add(time.Hour)

	if item.Specs["mount"] != "EF" || *item.CheckedOutTo != "Alice" || !item.DueBack.Equal(due) {
		t.Fatalf("clone shares scalar pointers with original")
	}
	if !item.CheckoutHistory[0].DueDate.Equal(due) || item.Reservations[0].Notes[0].Text != "" {
		t.Fatalf("clone shares nested history with original")
	}
	if !item.MaintenanceHistory[0].CompletedDate.Equal(due) || !item.Reminders[0].DueAt.Equal(due) {
		t.Fatalf("clone shares maintenance or reminder dates")
	}
}

func TestMaintenanceStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to MaintenanceStatus
		ok       bool
	}{
		{MaintenanceScheduled, MaintenanceInProgress, true},
		{MaintenanceScheduled, MaintenanceCancelled, true},
		{MaintenanceScheduled, MaintenanceCompleted, false},
		{MaintenanceInProgress, MaintenanceCompleted, true},
		{MaintenanceInProgress, MaintenanceCancelled, true},
		{MaintenanceInProgress, MaintenanceScheduled, false},
		{MaintenanceCompleted, MaintenanceInProgress, false},
		{MaintenanceCancelled, MaintenanceScheduled, false},
		{MaintenanceCompleted, MaintenanceCompleted, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestStatusValidity(t *testing.T) {
	if StatusOverdue.Stored() {
		t.Fatalf("overdue is derived and must not be storable")
	}
	if !StatusMissing.Stored() || ItemStatus("lost").Stored() {
		t.Fatalf("unexpected stored status validity")
	}
	if Condition("broken").Valid() || !ConditionPoor.Valid() {
		t.Fatalf("unexpected condition validity")
	}
	if !MaintenanceFirmware.Valid() || MaintenanceType("x").Valid() {
		t.Fatalf("unexpected maintenance type validity")
	}
}

func TestReservationOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	a := Reservation{Start: day(1), End: day(5)}
	if !a.Overlaps(Reservation{Start: day(5), End: day(7)}) {
		t.Fatalf("touching ranges overlap")
	}
	if a.Overlaps(Reservation{Start: day(6), End: day(7)}) {
		t.Fatalf("disjoint ranges must not overlap")
	}
}

func TestItemJSONUsesDecimalStrings(t *testing.T) {
	item := Item{Base: Base{ID: "CA-001"}, CurrentValue: decimal.RequireFromString("1299.99")}
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Item
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.CurrentValue.Equal(item.CurrentValue) {
		t.Fatalf("value mismatch %s", decoded.CurrentValue)
	}
}
