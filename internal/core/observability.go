package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the service. Arguments
// after the message are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reads the system clock.
type ClockFunc func() time.Time

// Now returns the function's time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// MetricsRecorder observes the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for an operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// OperationRecord is the operational audit of one service call. It is
// separate from the domain audit log, which describes what changed.
type OperationRecord struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an OperationRecord for every known operation.
type AuditRecorder interface {
	Record(ctx context.Context, record OperationRecord)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, OperationRecord) {}

type operationMeta struct {
	entity EntityType
	action Action
}

var operationCatalog = map[string]operationMeta{
	"create_item":               {EntityItem, ActionCreate},
	"update_item":               {EntityItem, ActionUpdate},
	"delete_item":               {EntityItem, ActionDelete},
	"set_item_status":           {EntityItem, ActionUpdate},
	"adjust_quantity":           {EntityItem, ActionUpdate},
	"attach_item_image":         {EntityItem, ActionUpdate},
	"add_note":                  {EntityItem, ActionUpdate},
	"delete_note":               {EntityItem, ActionUpdate},
	"add_reminder":              {EntityItem, ActionUpdate},
	"complete_reminder":         {EntityItem, ActionUpdate},
	"checkout":                  {EntityItem, ActionUpdate},
	"checkin":                   {EntityItem, ActionUpdate},
	"create_reservation":        {EntityReservation, ActionCreate},
	"update_reservation":        {EntityReservation, ActionUpdate},
	"delete_reservation":        {EntityReservation, ActionDelete},
	"add_reservation_note":      {EntityReservation, ActionUpdate},
	"convert_to_kit":            {EntityItem, ActionUpdate},
	"add_kit_children":          {EntityItem, ActionUpdate},
	"remove_kit_child":          {EntityItem, ActionUpdate},
	"clear_kit_children":        {EntityItem, ActionUpdate},
	"add_required_accessories":  {EntityItem, ActionUpdate},
	"remove_required_accessory": {EntityItem, ActionUpdate},
	"add_maintenance":           {EntityMaintenance, ActionCreate},
	"update_maintenance":        {EntityMaintenance, ActionUpdate},
	"transition_maintenance":    {EntityMaintenance, ActionUpdate},
}
