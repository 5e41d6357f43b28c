package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MutationOp is the gateway call a queued mutation maps to.
type MutationOp string

const (
	MutationCreate MutationOp = "create"
	MutationUpdate MutationOp = "update"
	MutationDelete MutationOp = "delete"
)

// Mutation is one pending write to the record gateway.
type Mutation struct {
	Op         MutationOp
	Record     Record
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
}

const (
	defaultSyncMaxAttempts = 5
	defaultSyncBackoff     = 500 * time.Millisecond
	maxSyncBackoff         = 30 * time.Second
)

// SyncOption configures a SyncQueue.
type SyncOption func(*SyncQueue)

// WithSyncLogger sets the queue logger.
func WithSyncLogger(logger Logger) SyncOption {
	return func(q *SyncQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithSyncMaxAttempts bounds how often the head mutation is retried before it
// is parked in the failed list.
func WithSyncMaxAttempts(n int) SyncOption {
	return func(q *SyncQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithSyncBackoff sets the base retry delay. It doubles per attempt.
func WithSyncBackoff(d time.Duration) SyncOption {
	return func(q *SyncQueue) {
		if d > 0 {
			q.backoff = d
		}
	}
}

// SyncQueue writes mutations to a RecordGateway in strict FIFO order. Local
// state is already committed when a mutation is enqueued, so failures are
// retried and finally parked, never rolled back.
type SyncQueue struct {
	gateway     RecordGateway
	logger      Logger
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time

	mu      sync.Mutex
	pending []Mutation
	failed  []Mutation
	applied uint64

	process sync.Mutex
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
	wg      sync.WaitGroup
}

// NewSyncQueue constructs a queue in front of gateway.
func NewSyncQueue(gateway RecordGateway, opts ...SyncOption) *SyncQueue {
	q := &SyncQueue{
		gateway:     gateway,
		logger:      noopLogger{},
		maxAttempts: defaultSyncMaxAttempts,
		backoff:     defaultSyncBackoff,
		now:         func() time.Time { return time.Now().UTC() },
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Gateway returns the wrapped gateway.
func (q *SyncQueue) Gateway() RecordGateway { return q.gateway }

// Enqueue appends mutations and wakes the worker.
func (q *SyncQueue) Enqueue(mutations ...Mutation) {
	if len(mutations) == 0 {
		return
	}
	q.mu.Lock()
	for _, m := range mutations {
		if m.EnqueuedAt.IsZero() {
			m.EnqueuedAt = q.now()
		}
		q.pending = append(q.pending, m)
	}
	q.mu.Unlock()
	q.signal()
}

func (q *SyncQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the background worker. It stops when ctx is cancelled or
// Close is called.
func (q *SyncQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(ctx)
}

func (q *SyncQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		_, err := q.ProcessOnce(ctx)
		wake := q.wake
		var retry <-chan time.Time
		if err != nil {
			wake = nil
			retry = time.After(q.delay())
		}
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case <-wake:
		case <-retry:
		}
	}
}

// delay is the backoff before the head mutation's next attempt.
func (q *SyncQueue) delay() time.Duration {
	q.mu.Lock()
	attempts := 1
	if len(q.pending) > 0 && q.pending[0].Attempts > 0 {
		attempts = q.pending[0].Attempts
	}
	q.mu.Unlock()
	d := q.backoff
	for i := 1; i < attempts && d < maxSyncBackoff; i++ {
		d *= 2
	}
	return min(d, maxSyncBackoff)
}

// ProcessOnce applies pending mutations from the head until the queue is empty
// or the head fails. A failing head that reached the attempt limit is parked
// and processing continues; otherwise the error is returned and the head
// stays in place. It reports how many mutations were applied.
func (q *SyncQueue) ProcessOnce(ctx context.Context) (int, error) {
	q.process.Lock()
	defer q.process.Unlock()

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return applied, nil
		}
		head := q.pending[0]
		q.mu.Unlock()

		err := q.apply(ctx, head)

		q.mu.Lock()
		if err == nil {
			q.pending = q.pending[1:]
			q.applied++
			q.mu.Unlock()
			applied++
			continue
		}
		head.Attempts++
		head.LastError = err.Error()
		if head.Attempts >= q.maxAttempts {
			q.pending = q.pending[1:]
			q.failed = append(q.failed, head)
			q.mu.Unlock()
			q.logger.Error("sync mutation parked", "op", string(head.Op), "entity", string(head.Record.Entity), "id", head.Record.ID, "attempts", head.Attempts, "error", err)
			continue
		}
		q.pending[0] = head
		q.mu.Unlock()
		q.logger.Warn("sync mutation failed", "op", string(head.Op), "entity", string(head.Record.Entity), "id", head.Record.ID, "attempt", head.Attempts, "error", err)
		return applied, fmt.Errorf("sync %s %s %s: %w", head.Op, head.Record.Entity, head.Record.ID, err)
	}
}

func (q *SyncQueue) apply(ctx context.Context, m Mutation) error {
	if q.gateway == nil {
		return ErrNoGateway
	}
	switch m.Op {
	case MutationCreate:
		return q.gateway.Create(ctx, m.Record)
	case MutationUpdate:
		return q.gateway.Update(ctx, m.Record)
	case MutationDelete:
		return q.gateway.Delete(ctx, m.Record.Entity, m.Record.ID)
	default:
		return fmt.Errorf("unknown mutation op %q", m.Op)
	}
}

// Flush processes until nothing is pending, waiting out backoff between
// failed attempts. Mutations that exhaust their attempts end up in Failed.
func (q *SyncQueue) Flush(ctx context.Context) error {
	for {
		_, err := q.ProcessOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		timer := time.NewTimer(q.delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reconcile moves every parked mutation back to the front of the queue with a
// fresh attempt budget, keeping their original order. It returns how many were
// requeued.
func (q *SyncQueue) Reconcile() int {
	q.mu.Lock()
	n := len(q.failed)
	if n == 0 {
		q.mu.Unlock()
		return 0
	}
	requeued := make([]Mutation, 0, n+len(q.pending))
	for _, m := range q.failed {
		m.Attempts = 0
		requeued = append(requeued, m)
	}
	q.pending = append(requeued, q.pending...)
	q.failed = nil
	q.mu.Unlock()
	q.logger.Info("sync reconcile", "requeued", n)
	q.signal()
	return n
}

// Pending returns a copy of the queued mutations.
func (q *SyncQueue) Pending() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Mutation(nil), q.pending...)
}

// Failed returns a copy of the parked mutations.
func (q *SyncQueue) Failed() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Mutation(nil), q.failed...)
}

// Stats reports queue depth, parked count and total applied mutations.
func (q *SyncQueue) Stats() (pending, failed int, applied uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.failed), q.applied
}

// Close stops the worker and waits for it to exit. Pending mutations stay
// queued; call Flush first to drain them.
func (q *SyncQueue) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}
