package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gearcore/internal/blob"
	"gearcore/internal/imaging"
	"gearcore/internal/infra/persistence/memory"
)

// Service exposes the equipment lifecycle operations. Each operation runs in
// one store transaction; history, remote writes and notifications follow only
// a successful commit.
type Service struct {
	store    PersistentStore
	now      func() time.Time
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	identity IdentityProvider
	notifier Notifier
	history  *HistoryRecorder
	sync     *SyncQueue
	images   blob.Store
	imaging  imaging.Processor
	policy   CategoryPolicy

	notifyWG sync.WaitGroup
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	return newService(store, collectOptions(opts))
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A clock set with WithClock also stamps stored entities.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	o := collectOptions(opts)
	var storeOpts []memory.Option
	if o.clock != nil {
		storeOpts = append(storeOpts, memory.WithNowFunc(o.clock.Now))
	}
	return newService(memory.NewStore(engine, storeOpts...), o)
}

func collectOptions(opts []Option) serviceOptions {
	var o serviceOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func newService(store PersistentStore, o serviceOptions) *Service {
	s := &Service{
		store:    store,
		now:      selectNowFunc(store, o.clock),
		logger:   o.logger,
		audit:    o.audit,
		metrics:  o.metrics,
		tracer:   o.tracer,
		identity: o.identity,
		notifier: o.notifier,
		history:  NewHistoryRecorder(),
		images:   o.images,
		policy:   o.policy,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.audit == nil {
		s.audit = noopAuditRecorder{}
	}
	if s.metrics == nil {
		s.metrics = noopMetricsRecorder{}
	}
	if s.tracer == nil {
		s.tracer = noopTracer{}
	}
	if s.identity == nil {
		s.identity = contextIdentity{}
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if o.imaging != nil {
		s.imaging = *o.imaging
	}
	if o.gateway != nil {
		syncOpts := append([]SyncOption{WithSyncLogger(s.logger)}, o.syncOpts...)
		s.sync = NewSyncQueue(o.gateway, syncOpts...)
	}
	return s
}

// Store returns the underlying entity store.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the store's rules engine when it exposes one.
func (s *Service) RulesEngine() *RulesEngine {
	return extractRulesEngine(s.store)
}

// History returns the audit and change-log recorder.
func (s *Service) History() *HistoryRecorder {
	return s.history
}

// Sync returns the record sync queue, or nil without a gateway.
func (s *Service) Sync() *SyncQueue {
	return s.sync
}

// Policy returns the category policy in effect.
func (s *Service) Policy() CategoryPolicy {
	return s.policy
}

// Start launches the sync worker when a gateway is configured.
func (s *Service) Start(ctx context.Context) {
	if s.sync != nil {
		s.sync.Start(ctx)
	}
}

// WaitNotifications blocks until in-flight notifications have returned.
func (s *Service) WaitNotifications() {
	s.notifyWG.Wait()
}

// Close waits for notifications, drains the sync queue within ctx, stops the
// worker and closes the gateway.
func (s *Service) Close(ctx context.Context) error {
	s.notifyWG.Wait()
	if s.sync == nil {
		return nil
	}
	flushErr := s.sync.Flush(ctx)
	s.sync.Close()
	if failed := s.sync.Failed(); len(failed) > 0 {
		s.logger.Warn("closing with parked sync mutations", "failed", len(failed))
	}
	closeErr := s.sync.Gateway().Close()
	return errors.Join(flushErr, closeErr)
}

type stateImporter interface {
	ImportState(memory.Snapshot) error
}

// Resync flushes pending writes, then replaces local state and history with
// what the gateway holds. Call it before serving; concurrent operations may
// be overwritten.
func (s *Service) Resync(ctx context.Context) error {
	_, err := s.run(ctx, "resync", func(ctx context.Context) (string, Result, error) {
		if s.sync == nil {
			return "", Result{}, ErrNoGateway
		}
		importer, ok := s.store.(stateImporter)
		if !ok {
			return "", Result{}, fmt.Errorf("store %T cannot import state", s.store)
		}
		if err := s.sync.Flush(ctx); err != nil {
			return "", Result{}, fmt.Errorf("flush pending mutations: %w", err)
		}
		if failed := s.sync.Failed(); len(failed) > 0 {
			s.logger.Warn("resync with parked sync mutations", "failed", len(failed))
		}
		records, err := s.sync.Gateway().Load(ctx)
		if err != nil {
			return "", Result{}, fmt.Errorf("load records: %w", err)
		}
		h, err := hydrate(records)
		if err != nil {
			return "", Result{}, err
		}
		if err := importer.ImportState(h.snapshot); err != nil {
			return "", Result{}, err
		}
		s.history.Restore(h.audits, h.changes)
		if h.orphans > 0 {
			s.logger.Warn("resync dropped orphaned records", "count", h.orphans)
		}
		s.logger.Info("resync complete", "items", len(h.snapshot.Items), "audits", len(h.audits), "changes", len(h.changes))
		return "", Result{}, nil
	})
	return err
}

// run wraps an operation with tracing, metrics, operational audit and logging.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, res, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	s.recordOperation(ctx, op, entityID, err, duration)

	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	case IsValidation(err) || IsNotFound(err) || errors.Is(err, ErrConfirmationRequired):
		s.logger.Warn("operation rejected", "operation", op, "entity_id", entityID, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
	}
	return res, err
}

func (s *Service) recordOperation(ctx context.Context, op, entityID string, err error, duration time.Duration) {
	meta, ok := operationCatalog[op]
	if !ok {
		return
	}
	record := OperationRecord{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Actor:     s.identity.CurrentActor(ctx).Label(),
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		record.Status = AuditStatusError
		record.Error = err.Error()
	}
	s.audit.Record(ctx, record)
}

// loadItem resolves id inside tx or returns ErrNotFound.
func loadItem(tx Transaction, id string) (Item, error) {
	item, ok := tx.FindItem(id)
	if !ok {
		return Item{}, ErrNotFound{Entity: EntityItem, ID: id}
	}
	return item, nil
}
