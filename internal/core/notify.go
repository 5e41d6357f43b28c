package core

import (
	"context"
	"time"
)

// NotificationPayload carries what a delivery channel needs to tell a
// borrower about an item. Delivery itself happens outside the service.
type NotificationPayload struct {
	ItemID         string
	ItemName       string
	Borrower       string
	ContactEmail   string
	Project        string
	DueDate        *time.Time
	ReservationID  string
	Start          *time.Time
	End            *time.Time
	Condition      Condition
	DamageReported bool
	Actor          string
}

// Notifier delivers borrower notifications. Calls are made from a separate
// goroutine and never block an operation; returned errors are logged.
type Notifier interface {
	SendCheckoutEmail(ctx context.Context, payload NotificationPayload) error
	SendCheckinEmail(ctx context.Context, payload NotificationPayload) error
	SendReservationEmail(ctx context.Context, payload NotificationPayload) error
}

type noopNotifier struct{}

func (noopNotifier) SendCheckoutEmail(context.Context, NotificationPayload) error    { return nil }
func (noopNotifier) SendCheckinEmail(context.Context, NotificationPayload) error     { return nil }
func (noopNotifier) SendReservationEmail(context.Context, NotificationPayload) error { return nil }

type noticeKind string

const (
	noticeCheckout    noticeKind = "checkout"
	noticeCheckin     noticeKind = "checkin"
	noticeReservation noticeKind = "reservation"
)

type notice struct {
	kind    noticeKind
	payload NotificationPayload
}

func (s *Service) dispatch(ctx context.Context, notices []notice) {
	for _, n := range notices {
		if n.payload.ContactEmail == "" {
			continue
		}
		n := n
		s.notifyWG.Add(1)
		go func() {
			defer s.notifyWG.Done()
			var err error
			switch n.kind {
			case noticeCheckout:
				err = s.notifier.SendCheckoutEmail(ctx, n.payload)
			case noticeCheckin:
				err = s.notifier.SendCheckinEmail(ctx, n.payload)
			case noticeReservation:
				err = s.notifier.SendReservationEmail(ctx, n.payload)
			}
			if err != nil {
				s.logger.Warn("notification failed", "kind", string(n.kind), "item_id", n.payload.ItemID, "error", err)
			}
		}()
	}
}
