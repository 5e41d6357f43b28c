package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type pendingWrite struct {
	op     MutationOp
	entity EntityType
	id     string
	record func() (Record, error)
}

// unit collects the side effects of one transaction. Nothing in it is
// published until the transaction commits.
type unit struct {
	now     time.Time
	actor   string
	audits  []AuditEntry
	changes []ChangeLogEntry
	writes  []pendingWrite
	notices []notice
}

func (u *unit) audit(typ, itemID, description, content string) {
	u.audits = append(u.audits, AuditEntry{
		ID:          uuid.NewString(),
		Type:        typ,
		Timestamp:   u.now,
		Description: description,
		Actor:       u.actor,
		ItemID:      itemID,
		Content:     content,
	})
}

func (u *unit) change(typ string, entity EntityType, entityID, itemID, description string, before, after any) {
	u.changes = append(u.changes, ChangeLogEntry{
		ID:          uuid.NewString(),
		Type:        typ,
		Timestamp:   u.now,
		Actor:       u.actor,
		Entity:      entity,
		EntityID:    entityID,
		ItemID:      itemID,
		Description: description,
		Changes:     diffFields(before, after),
	})
}

func (u *unit) saveItem(op MutationOp, item Item) {
	item = item.Clone()
	u.writes = append(u.writes, pendingWrite{op: op, entity: EntityItem, id: item.ID, record: func() (Record, error) {
		return itemRecord(item)
	}})
}

func (u *unit) saveReservation(op MutationOp, r Reservation) {
	r = r.Clone()
	u.writes = append(u.writes, pendingWrite{op: op, entity: EntityReservation, id: r.ID, record: func() (Record, error) {
		return reservationRecord(r)
	}})
}

func (u *unit) saveMaintenance(op MutationOp, itemID string, m MaintenanceRecord) {
	m = m.Clone()
	u.writes = append(u.writes, pendingWrite{op: op, entity: EntityMaintenance, id: m.ID, record: func() (Record, error) {
		return maintenanceRecord(itemID, m)
	}})
}

func (u *unit) drop(entity EntityType, id string) {
	u.writes = append(u.writes, pendingWrite{op: MutationDelete, entity: entity, id: id})
}

func (u *unit) notify(kind noticeKind, payload NotificationPayload) {
	payload.Actor = u.actor
	u.notices = append(u.notices, notice{kind: kind, payload: payload})
}

// execute runs fn inside one store transaction and publishes the unit's
// history, gateway mutations and notifications only after commit.
func (s *Service) execute(ctx context.Context, fn func(tx Transaction, u *unit) error) (Result, error) {
	u := &unit{now: s.now(), actor: s.identity.CurrentActor(ctx).Label()}
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return fn(tx, u)
	})
	if err != nil {
		return res, err
	}
	s.commit(ctx, u)
	return res, nil
}

func (s *Service) commit(ctx context.Context, u *unit) {
	s.history.Append(u.audits, u.changes)
	if s.sync != nil {
		s.sync.Enqueue(s.mutations(u)...)
	}
	s.dispatch(context.WithoutCancel(ctx), u.notices)
}

// mutations orders entity writes before the history entries that describe them.
func (s *Service) mutations(u *unit) []Mutation {
	out := make([]Mutation, 0, len(u.writes)+len(u.audits)+len(u.changes))
	for _, w := range u.writes {
		if w.op == MutationDelete {
			out = append(out, Mutation{Op: MutationDelete, Record: Record{Entity: w.entity, ID: w.id, UpdatedAt: u.now}, EnqueuedAt: u.now})
			continue
		}
		rec, err := w.record()
		if err != nil {
			s.logger.Error("encode record", "entity", string(w.entity), "id", w.id, "error", err)
			continue
		}
		out = append(out, Mutation{Op: w.op, Record: rec, EnqueuedAt: u.now})
	}
	for _, a := range u.audits {
		rec, err := auditRecord(a)
		if err != nil {
			s.logger.Error("encode record", "entity", string(EntityAuditEntry), "id", a.ID, "error", err)
			continue
		}
		out = append(out, Mutation{Op: MutationCreate, Record: rec, EnqueuedAt: u.now})
	}
	for _, c := range u.changes {
		rec, err := changeRecord(c)
		if err != nil {
			s.logger.Error("encode record", "entity", string(EntityChangeEntry), "id", c.ID, "error", err)
			continue
		}
		out = append(out, Mutation{Op: MutationCreate, Record: rec, EnqueuedAt: u.now})
	}
	return out
}
