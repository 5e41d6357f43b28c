package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gearcore/internal/infra/persistence/memory"
)

var testNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return testNow })
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	return NewInMemoryService(NewDefaultRulesEngine(), opts...)
}

func mustCreateItem(t *testing.T, svc *Service, item Item) Item {
	t.Helper()
	created, _, err := svc.CreateItem(context.Background(), item)
	if err != nil {
		t.Fatalf("create item %s: %v", item.ID, err)
	}
	return created
}

func mustGetItem(t *testing.T, svc *Service, id string) Item {
	t.Helper()
	item, err := svc.GetItem(id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
	sent  []NotificationPayload
	err   error
}

func (n *recordingNotifier) record(kind string, p NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.sent = append(n.sent, p)
	return n.err
}

func (n *recordingNotifier) SendCheckoutEmail(_ context.Context, p NotificationPayload) error {
	return n.record("checkout", p)
}

func (n *recordingNotifier) SendCheckinEmail(_ context.Context, p NotificationPayload) error {
	return n.record("checkin", p)
}

func (n *recordingNotifier) SendReservationEmail(_ context.Context, p NotificationPayload) error {
	return n.record("reservation", p)
}

func (n *recordingNotifier) snapshot() ([]string, []NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.kinds...), append([]NotificationPayload(nil), n.sent...)
}

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+":"+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// flakyGateway fails the next n writes before delegating to an in-memory gateway.
type flakyGateway struct {
	*memory.Gateway
	mu       sync.Mutex
	failures int
}

func newFlakyGateway(failures int) *flakyGateway {
	return &flakyGateway{Gateway: memory.NewGateway(), failures: failures}
}

func (g *flakyGateway) fail() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return errors.New("backend unavailable")
	}
	return nil
}

func (g *flakyGateway) setFailures(n int) {
	g.mu.Lock()
	g.failures = n
	g.mu.Unlock()
}

func (g *flakyGateway) Create(ctx context.Context, rec Record) error {
	if err := g.fail(); err != nil {
		return err
	}
	return g.Gateway.Create(ctx, rec)
}

func (g *flakyGateway) Update(ctx context.Context, rec Record) error {
	if err := g.fail(); err != nil {
		return err
	}
	return g.Gateway.Update(ctx, rec)
}

func (g *flakyGateway) Delete(ctx context.Context, entity EntityType, id string) error {
	if err := g.fail(); err != nil {
		return err
	}
	return g.Gateway.Delete(ctx, entity, id)
}

func itemMutation(id string) Mutation {
	return Mutation{Op: MutationCreate, Record: Record{Entity: EntityItem, ID: id, Payload: []byte(fmt.Sprintf(`{"id":%q}`, id))}}
}
