package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gearcore/pkg/domain"
)

func TestCheckoutAndDamagedCheckin(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{ID: "u1", Name: "Dana"})
	notifier := &recordingNotifier{}
	svc := newTestService(t, WithNotifier(notifier))
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera body", Category: "Camera"})

	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Alice", ContactEmail: "alice@example.com", DueDate: due})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if out.Status != StatusCheckedOut || out.CheckedOutTo == nil || *out.CheckedOutTo != "Alice" {
		t.Fatalf("unexpected checkout state %+v", out)
	}
	if out.CheckoutCount != 1 || len(out.CheckoutHistory) != 1 || out.CheckoutHistory[0].Type != domain.CheckoutEventCheckout {
		t.Fatalf("expected one checkout entry, got %+v", out.CheckoutHistory)
	}
	if out.DueBack == nil || !out.DueBack.Equal(due) || out.CheckedOutDate == nil || !out.CheckedOutDate.Equal(testNow) {
		t.Fatalf("checkout dates not set: %+v", out)
	}
	if out.CheckoutHistory[0].Actor != "Dana" {
		t.Fatalf("expected actor stamp, got %q", out.CheckoutHistory[0].Actor)
	}
	svc.WaitNotifications()

	in, _, err := svc.Checkin(ctx, "CA-001", CheckinRequest{DamageReported: true, DamageDescription: "cracked lens", Condition: domain.ConditionPoor})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if in.Status != StatusNeedsAttention {
		t.Fatalf("damaged checkin must need attention, got %s", in.Status)
	}
	if in.CheckedOutTo != nil || in.CheckedOutDate != nil || in.DueBack != nil {
		t.Fatalf("checkout fields not cleared: %+v", in)
	}
	if len(in.Notes) != 1 || !strings.Contains(in.Notes[0].Text, "cracked lens") {
		t.Fatalf("expected damage note, got %+v", in.Notes)
	}
	if len(in.CheckoutHistory) != 2 || in.CheckoutHistory[1].Type != domain.CheckoutEventCheckin || in.CheckoutHistory[1].Borrower != "Alice" {
		t.Fatalf("expected checkin entry, got %+v", in.CheckoutHistory)
	}
	if in.Condition != domain.ConditionPoor || in.CheckoutCount != 1 {
		t.Fatalf("unexpected condition or count: %+v", in)
	}

	audits := svc.History().AuditForItem("CA-001")
	if len(audits) != 3 || audits[1].Type != "checkout" || audits[2].Type != "checkin" {
		t.Fatalf("unexpected audit log %+v", audits)
	}
	changes := svc.History().ChangeLogForItem("CA-001")
	var sawStatus bool
	for _, fc := range changes[len(changes)-1].Changes {
		if fc.Field == "status" && fc.Before == string(StatusCheckedOut) && fc.After == string(StatusNeedsAttention) {
			sawStatus = true
		}
	}
	if !sawStatus {
		t.Fatalf("expected status diff in change log, got %+v", changes[len(changes)-1])
	}

	svc.WaitNotifications()
	kinds, sent := notifier.snapshot()
	byKind := make(map[string]NotificationPayload, len(kinds))
	for i, kind := range kinds {
		byKind[kind] = sent[i]
	}
	if len(kinds) != 2 || len(byKind) != 2 {
		t.Fatalf("unexpected notifications %v", kinds)
	}
	checkin, ok := byKind["checkin"]
	if !ok || checkin.ContactEmail != "alice@example.com" || !checkin.DamageReported {
		t.Fatalf("checkin notification should reuse the checkout contact: %+v", checkin)
	}
	if _, ok := byKind["checkout"]; !ok {
		t.Fatalf("missing checkout notification in %v", kinds)
	}
}

func TestCheckinWithoutDamageIsAvailable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "AU-001"}, Name: "Recorder", Category: "Audio", Status: StatusReserved})
	if _, _, err := svc.Checkout(ctx, "AU-001", CheckoutRequest{Borrower: "Bob", DueDate: testNow.Add(48 * time.Hour)}); err != nil {
		t.Fatalf("checkout from reserved: %v", err)
	}
	in, _, err := svc.Checkin(ctx, "AU-001", CheckinRequest{})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if in.Status != StatusAvailable || len(in.Notes) != 0 {
		t.Fatalf("unexpected checkin result %+v", in)
	}
}

func TestCheckoutRejections(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(t, WithNotifier(notifier))
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera", Category: "Camera"})
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-002"}, Name: "Camera", Category: "Camera", Status: StatusMissing})
	due := testNow.Add(24 * time.Hour)

	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{DueDate: due}); !IsValidation(err) {
		t.Fatalf("expected borrower validation, got %v", err)
	}
	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Alice"}); !IsValidation(err) {
		t.Fatalf("expected due date validation, got %v", err)
	}
	if _, _, err := svc.Checkout(ctx, "CA-404", CheckoutRequest{Borrower: "Alice", DueDate: due}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.Checkout(ctx, "CA-002", CheckoutRequest{Borrower: "Alice", DueDate: due}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("missing items cannot be checked out, got %v", err)
	}
	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Alice", DueDate: due}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Bob", DueDate: due}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double checkout must fail, got %v", err)
	}
	if _, _, err := svc.Checkin(ctx, "CA-002", CheckinRequest{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("checkin requires checked-out, got %v", err)
	}
	item := mustGetItem(t, svc, "CA-001")
	if item.CheckoutCount != 1 || len(item.CheckoutHistory) != 1 {
		t.Fatalf("rejected calls must not mutate state: %+v", item)
	}
	svc.WaitNotifications()
	if kinds, _ := notifier.snapshot(); len(kinds) != 0 {
		t.Fatalf("no contact email means no notification, got %v", kinds)
	}
}

func TestSetItemStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera", Category: "Camera"})

	for _, status := range []ItemStatus{StatusOverdue, StatusCheckedOut, ItemStatus("broken")} {
		if _, _, err := svc.SetItemStatus(ctx, "CA-001", status); !IsValidation(err) {
			t.Fatalf("%s must be rejected, got %v", status, err)
		}
	}
	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Alice", DueDate: testNow.Add(time.Hour)}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	missing, _, err := svc.SetItemStatus(ctx, "CA-001", StatusMissing)
	if err != nil {
		t.Fatalf("set missing: %v", err)
	}
	if missing.Status != StatusMissing || missing.CheckedOutTo != nil || missing.DueBack != nil {
		t.Fatalf("manual status change must clear checkout fields: %+v", missing)
	}
	before := len(svc.History().AuditLog())
	if _, _, err := svc.SetItemStatus(ctx, "CA-001", StatusMissing); err != nil {
		t.Fatalf("same status: %v", err)
	}
	if len(svc.History().AuditLog()) != before {
		t.Fatalf("no-op status change must not be audited")
	}
}

func TestCheckoutHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera", Category: "Camera"})
	if _, _, err := svc.Checkout(ctx, "CA-001", CheckoutRequest{Borrower: "Alice", DueDate: testNow.Add(time.Hour)}); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateItem("CA-001", func(it *Item) error {
			it.CheckoutHistory[0].Borrower = "Mallory"
			return nil
		})
		return err
	})
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateItem("CA-001", func(it *Item) error {
			it.CheckoutHistory = nil
			it.Status = StatusAvailable
			it.CheckedOutTo, it.CheckedOutDate, it.DueBack = nil, nil, nil
			return nil
		})
		return err
	})
	if !errors.As(err, &violation) || violation.Result.Violations[0].Rule != "checkout_history_append_only" {
		t.Fatalf("expected append-only violation, got %v", err)
	}
	if got := mustGetItem(t, svc, "CA-001"); got.CheckoutHistory[0].Borrower != "Alice" {
		t.Fatalf("blocked transaction leaked: %+v", got.CheckoutHistory)
	}
}

func TestCheckoutFieldsRuleBlocksInconsistentStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustCreateItem(t, svc, Item{Base: domain.Base{ID: "CA-001"}, Name: "Camera", Category: "Camera"})
	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateItem("CA-001", func(it *Item) error {
			it.Status = StatusCheckedOut
			return nil
		})
		return err
	})
	var violation RuleViolationError
	if !errors.As(err, &violation) || violation.Result.Violations[0].Rule != "checkout_fields" {
		t.Fatalf("expected checkout_fields violation, got %v", err)
	}
}
