package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gearcore/pkg/domain"
)

var _ domain.RecordGateway = (*Gateway)(nil)

type recordKey struct {
	entity domain.EntityType
	id     string
}

type storedRecord struct {
	rec domain.Record
	seq uint64
}

// Gateway is an in-process RecordGateway used for ephemeral deployments and
// tests. Records keep the sequence of their first write so Load returns them
// in insertion order, matching the SQL gateways.
type Gateway struct {
	mu      sync.Mutex
	records map[recordKey]storedRecord
	seq     uint64
	closed  bool
}

// NewGateway constructs an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{records: make(map[recordKey]storedRecord)}
}

// Create stores rec, replacing any record with the same entity and id.
func (g *Gateway) Create(_ context.Context, rec domain.Record) error {
	return g.put(rec)
}

// Update stores rec, replacing any record with the same entity and id.
func (g *Gateway) Update(_ context.Context, rec domain.Record) error {
	return g.put(rec)
}

func (g *Gateway) put(rec domain.Record) error {
	if rec.Entity == "" || rec.ID == "" {
		return fmt.Errorf("record requires entity and id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("gateway closed")
	}
	key := recordKey{entity: rec.Entity, id: rec.ID}
	rec.Payload = append([]byte(nil), rec.Payload...)
	existing, ok := g.records[key]
	if ok {
		g.records[key] = storedRecord{rec: rec, seq: existing.seq}
		return nil
	}
	g.seq++
	g.records[key] = storedRecord{rec: rec, seq: g.seq}
	return nil
}

// Delete removes the record. Missing records are not an error.
func (g *Gateway) Delete(_ context.Context, entity domain.EntityType, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("gateway closed")
	}
	delete(g.records, recordKey{entity: entity, id: id})
	return nil
}

// Load returns copies of all records in insertion order.
func (g *Gateway) Load(_ context.Context) ([]domain.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stored := make([]storedRecord, 0, len(g.records))
	for _, r := range g.records {
		stored = append(stored, r)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	out := make([]domain.Record, 0, len(stored))
	for _, r := range stored {
		rec := r.rec
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
	}
	return out, nil
}

// Len reports the number of stored records.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Close marks the gateway closed; subsequent writes fail.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
