package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationStats aggregates the outcomes of one service operation.
type OperationStats struct {
	Succeeded int64   `json:"succeeded"`
	Failed    int64   `json:"failed"`
	TotalMS   float64 `json:"total_ms"`
	MaxMS     float64 `json:"max_ms"`
}

// MeanMS is the average duration per call, zero before the first call.
func (o OperationStats) MeanMS() float64 {
	n := o.Succeeded + o.Failed
	if n == 0 {
		return 0
	}
	return o.TotalMS / float64(n)
}

// ExpvarSnapshot is the document published under the recorder's expvar name.
type ExpvarSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder keeps per-operation totals and publishes them on
// /debug/vars.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name gets
// a unique "gearcore_operations_<n>" so repeated construction in one process
// never collides in the expvar registry.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("gearcore_operations_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]OperationStats, len(r.ops))
	for op, stats := range r.ops {
		ops[op] = *stats
	}
	return ExpvarSnapshot{Operations: ops, RecordedAt: time.Now().UTC()}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.ops[operation]
	if !ok {
		stats = &OperationStats{}
		r.ops[operation] = stats
	}
	if success {
		stats.Succeeded++
	} else {
		stats.Failed++
	}
	stats.TotalMS += ms
	stats.MaxMS = max(stats.MaxMS, ms)
}

// JSONTraceEntry is one finished operation span.
type JSONTraceEntry struct {
	Seq        uint64    `json:"seq"`
	Operation  string    `json:"operation"`
	Actor      string    `json:"actor,omitempty"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// DefaultTraceRetention bounds the spans a JSONTraceTracer keeps in memory.
const DefaultTraceRetention = 256

// JSONTraceTracer writes one JSON line per finished span and retains the most
// recent spans for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	keep    int
	seq     uint64
	entries []JSONTraceEntry
}

// NewJSONTracer writes spans to w and keeps the last keep of them; keep <= 0
// uses DefaultTraceRetention. A nil writer only retains spans.
func NewJSONTracer(w io.Writer, keep int) *JSONTraceTracer {
	if keep <= 0 {
		keep = DefaultTraceRetention
	}
	t := &JSONTraceTracer{keep: keep}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the retained spans, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Slowest returns up to n retained spans ordered by duration, longest first.
func (t *JSONTraceTracer) Slowest(n int) []JSONTraceEntry {
	out := t.Entries()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DurationMS > out[j].DurationMS })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
	if actor, ok := ActorFromContext(ctx); ok {
		span.actor = actor.Label()
	}
	return ctx, span
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	entry.Seq = t.seq
	if len(t.entries) == t.keep {
		copy(t.entries, t.entries[1:])
		t.entries = t.entries[:t.keep-1]
	}
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	actor     string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Actor:      s.actor,
		Status:     string(AuditStatusSuccess),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = string(AuditStatusError)
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}
