// Package domain defines the persistent equipment entities, value types, and
// rule evaluation primitives used by gearcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence records.
const (
	// EntityItem identifies an equipment item (including kits).
	EntityItem EntityType = "item"
	// EntityReservation identifies a reservation owned by an item.
	EntityReservation EntityType = "reservation"
	// EntityMaintenance identifies a maintenance record owned by an item.
	EntityMaintenance EntityType = "maintenance_record"
	EntityAuditEntry  EntityType = "audit_entry"
	EntityChangeEntry EntityType = "change_entry"
)

// ItemStatus is the operational state of an item.
type ItemStatus string

// Item statuses. StatusOverdue is derived from the due date and is never stored.
const (
	StatusAvailable      ItemStatus = "available"
	StatusCheckedOut     ItemStatus = "checked-out"
	StatusReserved       ItemStatus = "reserved"
	StatusNeedsAttention ItemStatus = "needs-attention"
	StatusMissing        ItemStatus = "missing"
	StatusOverdue        ItemStatus = "overdue"
)

// Stored reports whether the status may be persisted on an item.
func (s ItemStatus) Stored() bool {
	switch s {
	case StatusAvailable, StatusCheckedOut, StatusReserved, StatusNeedsAttention, StatusMissing:
		return true
	}
	return false
}

// Condition describes the physical state of an item.
type Condition string

// Item conditions.
const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

// Valid reports whether the condition is one of the known values.
func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// ReservationStatus captures the booking state of a reservation.
type ReservationStatus string

// Reservation statuses.
const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationPending   ReservationStatus = "pending"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Valid reports whether the reservation status is known.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationConfirmed, ReservationPending, ReservationCancelled:
		return true
	}
	return false
}

// MaintenanceType classifies a maintenance record.
type MaintenanceType string

// Maintenance types.
const (
	MaintenanceRepair      MaintenanceType = "repair"
	MaintenanceCleaning    MaintenanceType = "cleaning"
	MaintenanceCalibration MaintenanceType = "calibration"
	MaintenanceFirmware    MaintenanceType = "firmware"
	MaintenanceParts       MaintenanceType = "parts"
	MaintenanceInspection  MaintenanceType = "inspection"
	MaintenancePreventive  MaintenanceType = "preventive"
	MaintenanceOther       MaintenanceType = "other"
)

// Valid reports whether the maintenance type is known.
func (t MaintenanceType) Valid() bool {
	switch t {
	case MaintenanceRepair, MaintenanceCleaning, MaintenanceCalibration, MaintenanceFirmware,
		MaintenanceParts, MaintenanceInspection, MaintenancePreventive, MaintenanceOther:
		return true
	}
	return false
}

// MaintenanceStatus captures the progress of a maintenance record.
type MaintenanceStatus string

// Maintenance statuses.
const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in-progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// Valid reports whether the maintenance status is known.
func (s MaintenanceStatus) Valid() bool {
	switch s {
	case MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a record may move from s to next.
// Completed and cancelled are terminal.
func (s MaintenanceStatus) CanTransitionTo(next MaintenanceStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case MaintenanceScheduled:
		return next == MaintenanceInProgress || next == MaintenanceCancelled
	case MaintenanceInProgress:
		return next == MaintenanceCompleted || next == MaintenanceCancelled
	}
	return false
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a piece of equipment, or a kit grouping other items.
//
// ChildItemIDs and ParentKitID are projections of the store's Composition
// relation; writes to them through a transaction mutator are ignored.
type Item struct {
	Base
	Name                string              `json:"name"`
	Brand               string              `json:"brand,omitempty"`
	Category            string              `json:"category"`
	Status              ItemStatus          `json:"status"`
	Condition           Condition           `json:"condition"`
	Location            string              `json:"location,omitempty"`
	Quantity            int                 `json:"quantity"`
	ReorderPoint        int                 `json:"reorder_point"`
	CurrentValue        decimal.Decimal     `json:"current_value"`
	PurchasePrice       decimal.Decimal     `json:"purchase_price"`
	PurchaseDate        *time.Time          `json:"purchase_date,omitempty"`
	ImageRef            string              `json:"image_ref,omitempty"`
	Specs               map[string]string   `json:"specs,omitempty"`
	IsKit               bool                `json:"is_kit"`
	KitType             string              `json:"kit_type,omitempty"`
	ChildItemIDs        []string            `json:"child_item_ids,omitempty"`
	ParentKitID         *string             `json:"parent_kit_id,omitempty"`
	RequiredAccessories []string            `json:"required_accessories,omitempty"`
	CheckedOutTo        *string             `json:"checked_out_to,omitempty"`
	CheckedOutDate      *time.Time          `json:"checked_out_date,omitempty"`
	DueBack             *time.Time          `json:"due_back,omitempty"`
	CheckoutCount       int                 `json:"checkout_count"`
	Reservations        []Reservation       `json:"reservations,omitempty"`
	MaintenanceHistory  []MaintenanceRecord `json:"maintenance_history,omitempty"`
	CheckoutHistory     []CheckoutEvent     `json:"checkout_history,omitempty"`
	Notes               []Note              `json:"notes,omitempty"`
	Reminders           []Reminder          `json:"reminders,omitempty"`
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	cp := i
	if i.Specs != nil {
		cp.Specs = make(map[string]string, len(i.Specs))
		for k, v := range i.Specs {
			cp.Specs[k] = v
		}
	}
	cp.PurchaseDate = cloneTime(i.PurchaseDate)
	cp.ChildItemIDs = cloneStrings(i.ChildItemIDs)
	cp.ParentKitID = cloneString(i.ParentKitID)
	cp.RequiredAccessories = cloneStrings(i.RequiredAccessories)
	cp.CheckedOutTo = cloneString(i.CheckedOutTo)
	cp.CheckedOutDate = cloneTime(i.CheckedOutDate)
	cp.DueBack = cloneTime(i.DueBack)
	if i.Reservations != nil {
		cp.Reservations = make([]Reservation, len(i.Reservations))
		for idx, r := range i.Reservations {
			cp.Reservations[idx] = r.Clone()
		}
	}
	if i.MaintenanceHistory != nil {
		cp.MaintenanceHistory = make([]MaintenanceRecord, len(i.MaintenanceHistory))
		for idx, m := range i.MaintenanceHistory {
			cp.MaintenanceHistory[idx] = m.Clone()
		}
	}
	if i.CheckoutHistory != nil {
		cp.CheckoutHistory = make([]CheckoutEvent, len(i.CheckoutHistory))
		for idx, e := range i.CheckoutHistory {
			cp.CheckoutHistory[idx] = e.Clone()
		}
	}
	if i.Notes != nil {
		cp.Notes = append([]Note(nil), i.Notes...)
	}
	if i.Reminders != nil {
		cp.Reminders = make([]Reminder, len(i.Reminders))
		for idx, r := range i.Reminders {
			cp.Reminders[idx] = r.Clone()
		}
	}
	return cp
}

// HasRequiredAccessory reports whether id is linked as a required accessory.
func (i Item) HasRequiredAccessory(id string) bool {
	for _, existing := range i.RequiredAccessories {
		if existing == id {
			return true
		}
	}
	return false
}

// CheckoutEventType distinguishes checkout history entries.
type CheckoutEventType string

// Checkout history entry types.
const (
	CheckoutEventCheckout CheckoutEventType = "checkout"
	CheckoutEventCheckin  CheckoutEventType = "checkin"
)

// CheckoutEvent is one immutable entry in an item's checkout history.
type CheckoutEvent struct {
	ID                string            `json:"id"`
	Type              CheckoutEventType `json:"type"`
	Timestamp         time.Time         `json:"timestamp"`
	Actor             string            `json:"actor"`
	Borrower          string            `json:"borrower"`
	ContactEmail      string            `json:"contact_email,omitempty"`
	Project           string            `json:"project,omitempty"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	Condition         Condition         `json:"condition,omitempty"`
	DamageReported    bool              `json:"damage_reported,omitempty"`
	DamageDescription string            `json:"damage_description,omitempty"`
	Notes             string            `json:"notes,omitempty"`
}

// Clone returns a deep copy of the event.
func (e CheckoutEvent) Clone() CheckoutEvent {
	cp := e
	cp.DueDate = cloneTime(e.DueDate)
	return cp
}

// Note is a free-text annotation on an item.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminder is a follow-up task attached to an item.
type Reminder struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the reminder.
func (r Reminder) Clone() Reminder {
	cp := r
	cp.DueAt = cloneTime(r.DueAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return cp
}

// Reservation books a single item for a date range. A multi-item booking
// produces one reservation per item.
type Reservation struct {
	ID           string            `json:"id"`
	ItemID       string            `json:"item_id"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	DueBack      time.Time         `json:"due_back"`
	Project      string            `json:"project,omitempty"`
	ProjectType  string            `json:"project_type,omitempty"`
	Borrower     string            `json:"borrower"`
	ClientRef    string            `json:"client_ref,omitempty"`
	ContactName  string            `json:"contact_name,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
	ContactPhone string            `json:"contact_phone,omitempty"`
	Notes        []ThreadNote      `json:"notes,omitempty"`
	Status       ReservationStatus `json:"status"`
	CreatedBy    string            `json:"created_by"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the reservation.
func (r Reservation) Clone() Reservation {
	cp := r
	if r.Notes != nil {
		cp.Notes = append([]ThreadNote(nil), r.Notes...)
	}
	return cp
}

// Overlaps reports whether the two reservations share any instant.
func (r Reservation) Overlaps(other Reservation) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// ThreadNote is one message in a reservation's note thread.
type ThreadNote struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MaintenanceRecord documents service work on an item. Records are never deleted.
type MaintenanceRecord struct {
	ID            string            `json:"id"`
	Type          MaintenanceType   `json:"type"`
	Description   string            `json:"description"`
	Vendor        string            `json:"vendor,omitempty"`
	Cost          decimal.Decimal   `json:"cost"`
	WarrantyWork  bool              `json:"warranty_work"`
	Status        MaintenanceStatus `json:"status"`
	ScheduledDate *time.Time        `json:"scheduled_date,omitempty"`
	CompletedDate *time.Time        `json:"completed_date,omitempty"`
	PerformedBy   string            `json:"performed_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (m MaintenanceRecord) Clone() MaintenanceRecord {
	cp := m
	cp.ScheduledDate = cloneTime(m.ScheduledDate)
	cp.CompletedDate = cloneTime(m.CompletedDate)
	return cp
}

// AuditEntry is an immutable, human-readable record of an operation.
type AuditEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	ItemID      string    `json:"item_id,omitempty"`
	Content     string    `json:"content,omitempty"`
}

// ChangeLogEntry is an immutable record of field-level changes to an entity.
type ChangeLogEntry struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Timestamp   time.Time     `json:"timestamp"`
	Actor       string        `json:"actor"`
	Entity      EntityType    `json:"entity"`
	EntityID    string        `json:"entity_id"`
	ItemID      string        `json:"item_id,omitempty"`
	Description string        `json:"description"`
	Changes     []FieldChange `json:"changes,omitempty"`
}

// FieldChange captures the before and after value of one field.
type FieldChange struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}
