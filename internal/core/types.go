package core

import "gearcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Item               = domain.Item
	ItemStatus         = domain.ItemStatus
	Condition          = domain.Condition
	Reservation        = domain.Reservation
	ReservationStatus  = domain.ReservationStatus
	ThreadNote         = domain.ThreadNote
	MaintenanceRecord  = domain.MaintenanceRecord
	MaintenanceStatus  = domain.MaintenanceStatus
	MaintenanceType    = domain.MaintenanceType
	CheckoutEvent      = domain.CheckoutEvent
	Note               = domain.Note
	Reminder           = domain.Reminder
	AuditEntry         = domain.AuditEntry
	ChangeLogEntry     = domain.ChangeLogEntry
	FieldChange        = domain.FieldChange
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	Record             = domain.Record
	RecordGateway      = domain.RecordGateway
)

const (
	EntityItem        = domain.EntityItem
	EntityReservation = domain.EntityReservation
	EntityMaintenance = domain.EntityMaintenance
	EntityAuditEntry  = domain.EntityAuditEntry
	EntityChangeEntry = domain.EntityChangeEntry
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
