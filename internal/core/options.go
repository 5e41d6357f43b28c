package core

import (
	"time"

	"gearcore/internal/blob"
	"gearcore/internal/imaging"
)

type serviceOptions struct {
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	notifier Notifier
	identity IdentityProvider
	gateway  RecordGateway
	syncOpts []SyncOption
	images   blob.Store
	imaging  *imaging.Processor
	policy   CategoryPolicy
}

// Option customises a Service.
type Option func(*serviceOptions)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp entities and history.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder installs a recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs a tracer that spans every operation.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder installs the operational audit recorder.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithNotifier installs the borrower notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(o *serviceOptions) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithIdentityProvider replaces the context based identity lookup.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(o *serviceOptions) {
		if p != nil {
			o.identity = p
		}
	}
}

// WithRecordGateway enables remote persistence through a sync queue.
func WithRecordGateway(gateway RecordGateway, opts ...SyncOption) Option {
	return func(o *serviceOptions) {
		o.gateway = gateway
		o.syncOpts = append(o.syncOpts, opts...)
	}
}

// WithImageStore enables item photos stored in store.
func WithImageStore(store blob.Store) Option {
	return func(o *serviceOptions) {
		o.images = store
	}
}

// WithImageProcessor overrides the default photo normalisation settings.
func WithImageProcessor(p imaging.Processor) Option {
	return func(o *serviceOptions) {
		o.imaging = &p
	}
}

// WithCategoryPolicy sets quantity tracking and code prefixes per category.
func WithCategoryPolicy(policy CategoryPolicy) Option {
	return func(o *serviceOptions) {
		o.policy = policy
	}
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

// selectNowFunc prefers the store's own clock so entity stamps and history
// timestamps agree, then the configured clock, then the system clock.
func selectNowFunc(store any, clock Clock) func() time.Time {
	if p, ok := store.(nowFuncProvider); ok {
		if fn := p.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	if clock != nil {
		return clock.Now
	}
	return ClockFunc(nil).Now
}

func extractRulesEngine(store any) *RulesEngine {
	if p, ok := store.(rulesEngineProvider); ok {
		return p.RulesEngine()
	}
	return nil
}
