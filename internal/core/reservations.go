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

// ReservationDetails is the booking shared by every item of a reservation
// batch. Notes, when set, opens the reservation's note thread.
type ReservationDetails struct {
	Start        time.Time
	End          time.Time
	Project      string
	ProjectType  string
	Borrower     string
	ClientRef    string
	ContactName  string
	ContactEmail string
	ContactPhone string
	Status       ReservationStatus
	Notes        string
}

// Skipped names a batch target that was not applied and why.
type Skipped struct {
	ID     string
	Reason string
}

// ReservationBatch reports the outcome of a multi-item booking. Earlier
// reservations are kept when a later item is skipped.
type ReservationBatch struct {
	Created []Reservation
	Skipped []Skipped
}

// ReservationConflict is a pair of active reservations on the same item that
// share at least one instant.
type ReservationConflict struct {
	ItemID string
	First  Reservation
	Second Reservation
}

func validateReservation(r Reservation) error {
	switch {
	case r.Start.IsZero():
		return invalid("start", "is required")
	case r.End.IsZero():
		return invalid("end", "is required")
	case r.End.Before(r.Start):
		return invalid("end", "must not be before start")
	case strings.TrimSpace(r.Borrower) == "":
		return invalid("borrower", "is required")
	case !r.Status.Valid():
		return invalid("status", "unknown reservation status %q", r.Status)
	}
	return nil
}

// CreateReservation books every listed item with the same details, one
// transaction per item. Items that cannot be booked are logged and reported
// in Skipped without undoing the others.
func (s *Service) CreateReservation(ctx context.Context, itemIDs []string, details ReservationDetails) (ReservationBatch, error) {
	var batch ReservationBatch
	_, err := s.run(ctx, "create_reservation", func(ctx context.Context) (string, Result, error) {
		targets := dedupe(itemIDs)
		if len(targets) == 0 {
			return "", Result{}, invalid("item_ids", "at least one item is required")
		}
		template := Reservation{
			Start:        details.Start.UTC(),
			End:          details.End.UTC(),
			DueBack:      details.End.UTC(),
			Project:      details.Project,
			ProjectType:  details.ProjectType,
			Borrower:     strings.TrimSpace(details.Borrower),
			ClientRef:    details.ClientRef,
			ContactName:  details.ContactName,
			ContactEmail: details.ContactEmail,
			ContactPhone: details.ContactPhone,
			Status:       details.Status,
		}
		if template.Status == "" {
			template.Status = domain.ReservationConfirmed
		}
		if err := validateReservation(template); err != nil {
			return "", Result{}, err
		}

		var combined Result
		for _, itemID := range targets {
			var created Reservation
			res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
				if _, err := loadItem(tx, itemID); err != nil {
					return err
				}
				created = template.Clone()
				created.ID = uuid.NewString()
				created.ItemID = itemID
				created.CreatedBy = u.actor
				created.CreatedAt = u.now
				created.UpdatedAt = u.now
				if note := strings.TrimSpace(details.Notes); note != "" {
					created.Notes = []ThreadNote{{ID: uuid.NewString(), Author: u.actor, Text: note, CreatedAt: u.now}}
				}
				updated, err := tx.UpdateItem(itemID, func(it *Item) error {
					it.Reservations = append(it.Reservations, created.Clone())
					return nil
				})
				if err != nil {
					return err
				}
				desc := fmt.Sprintf("Reserved %s for %s from %s to %s", label(updated), created.Borrower,
					created.Start.Format(time.DateOnly), created.End.Format(time.DateOnly))
				u.audit("reservation_added", itemID, desc, "")
				u.change("reservation_added", EntityReservation, created.ID, itemID, desc, nil, created)
				u.saveReservation(MutationCreate, created)
				u.saveItem(MutationUpdate, updated)
				start, end := created.Start, created.End
				u.notify(noticeReservation, NotificationPayload{
					ItemID:        itemID,
					ItemName:      updated.Name,
					Borrower:      created.Borrower,
					ContactEmail:  created.ContactEmail,
					Project:       created.Project,
					ReservationID: created.ID,
					Start:         &start,
					End:           &end,
					DueDate:       &end,
				})
				return nil
			})
			if err != nil {
				if IsNotFound(err) {
					s.logger.Warn("reservation target not found", "item_id", itemID)
				} else {
					s.logger.Error("reservation failed", "item_id", itemID, "error", err)
				}
				batch.Skipped = append(batch.Skipped, Skipped{ID: itemID, Reason: err.Error()})
				continue
			}
			combined.Merge(res)
			batch.Created = append(batch.Created, created)
		}
		firstID := ""
		if len(batch.Created) > 0 {
			firstID = batch.Created[0].ID
		}
		return firstID, combined, nil
	})
	return batch, err
}

func findReservation(item Item, reservationID string) (int, error) {
	for i, r := range item.Reservations {
		if r.ID == reservationID {
			return i, nil
		}
	}
	return -1, ErrNotFound{Entity: EntityReservation, ID: reservationID}
}

// UpdateReservation edits a reservation in place. DueBack follows End; the
// id, owner, creator and note thread are kept.
func (s *Service) UpdateReservation(ctx context.Context, itemID, reservationID string, mutator func(*Reservation) error) (Reservation, Result, error) {
	var updated Reservation
	res, err := s.run(ctx, "update_reservation", func(ctx context.Context) (string, Result, error) {
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			item, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx, err := findReservation(item, reservationID)
			if err != nil {
				return err
			}
			before := item.Reservations[idx]
			working := before.Clone()
			if err := mutator(&working); err != nil {
				return err
			}
			working.ID = before.ID
			working.ItemID = before.ItemID
			working.CreatedBy = before.CreatedBy
			working.CreatedAt = before.CreatedAt
			working.UpdatedAt = before.UpdatedAt
			working.Notes = before.Notes
			working.Start = working.Start.UTC()
			working.End = working.End.UTC()
			working.DueBack = working.End
			if err := validateReservation(working); err != nil {
				return err
			}
			if len(diffFields(before, working)) == 0 {
				updated = before
				return nil
			}
			working.UpdatedAt = u.now
			owner, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Reservations[idx] = working.Clone()
				return nil
			})
			if err != nil {
				return err
			}
			updated = working
			desc := fmt.Sprintf("Updated reservation %s on %s", reservationID, label(owner))
			u.audit("reservation_updated", itemID, desc, "")
			u.change("reservation_updated", EntityReservation, reservationID, itemID, desc, before, updated)
			u.saveReservation(MutationUpdate, updated)
			u.saveItem(MutationUpdate, owner)
			return nil
		})
		return reservationID, res, err
	})
	return updated, res, err
}

// DeleteReservation removes a reservation after confirmation.
func (s *Service) DeleteReservation(ctx context.Context, itemID, reservationID string, confirmed bool) (Result, error) {
	return s.run(ctx, "delete_reservation", func(ctx context.Context) (string, Result, error) {
		if !confirmed {
			return reservationID, Result{}, ErrConfirmationRequired
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			item, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx, err := findReservation(item, reservationID)
			if err != nil {
				return err
			}
			removed := item.Reservations[idx]
			owner, err := tx.UpdateItem(itemID, func(it *Item) error {
				it.Reservations = append(it.Reservations[:idx:idx], it.Reservations[idx+1:]...)
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Removed reservation %s for %s from %s", reservationID, removed.Borrower, label(owner))
			u.audit("reservation_removed", itemID, desc, "")
			u.change("reservation_removed", EntityReservation, reservationID, itemID, desc, removed, nil)
			u.drop(EntityReservation, reservationID)
			u.saveItem(MutationUpdate, owner)
			return nil
		})
		return reservationID, res, err
	})
}

// AddReservationNote appends a message to a reservation's note thread.
func (s *Service) AddReservationNote(ctx context.Context, itemID, reservationID, text string) (ThreadNote, Result, error) {
	var note ThreadNote
	res, err := s.run(ctx, "add_reservation_note", func(ctx context.Context) (string, Result, error) {
		text = strings.TrimSpace(text)
		if text == "" {
			return reservationID, Result{}, invalid("text", "is required")
		}
		res, err := s.execute(ctx, func(tx Transaction, u *unit) error {
			item, err := loadItem(tx, itemID)
			if err != nil {
				return err
			}
			idx, err := findReservation(item, reservationID)
			if err != nil {
				return err
			}
			note = ThreadNote{ID: uuid.NewString(), Author: u.actor, Text: text, CreatedAt: u.now}
			var after Reservation
			owner, err := tx.UpdateItem(itemID, func(it *Item) error {
				r := &it.Reservations[idx]
				r.Notes = append(r.Notes, note)
				r.UpdatedAt = u.now
				after = r.Clone()
				return nil
			})
			if err != nil {
				return err
			}
			desc := fmt.Sprintf("Note added to reservation %s on %s", reservationID, label(owner))
			u.audit("reservation_note_added", itemID, desc, "")
			u.change("reservation_note_added", EntityReservation, reservationID, itemID, desc, nil, note)
			u.saveReservation(MutationUpdate, after)
			u.saveItem(MutationUpdate, owner)
			return nil
		})
		return reservationID, res, err
	})
	return note, res, err
}

// ReservationsForItem returns an item's reservations in booking order.
func (s *Service) ReservationsForItem(itemID string) ([]Reservation, error) {
	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	return item.Reservations, nil
}

// UpcomingReservations lists reservations that are not cancelled and have
// not ended before now, ordered by start.
func (s *Service) UpcomingReservations(now time.Time) []Reservation {
	var out []Reservation
	for _, item := range s.store.ListItems() {
		for _, r := range item.Reservations {
			if r.Status == domain.ReservationCancelled || r.End.Before(now) {
				continue
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// FindOverlaps reports pairs of non-cancelled reservations on itemID whose
// ranges intersect. Overlaps are allowed; this only surfaces them.
func (s *Service) FindOverlaps(itemID string) ([]ReservationConflict, error) {
	item, err := s.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	var active []Reservation
	for _, r := range item.Reservations {
		if r.Status != domain.ReservationCancelled {
			active = append(active, r)
		}
	}
	var out []ReservationConflict
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			if active[i].Overlaps(active[j]) {
				out = append(out, ReservationConflict{ItemID: itemID, First: active[i], Second: active[j]})
			}
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
