// Package redis implements the record gateway on Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"gearcore/pkg/domain"
)

var _ domain.RecordGateway = (*Gateway)(nil)

const defaultPrefix = "gearcore"

// Gateway stores each record as a JSON string under
// "<prefix>:record:<entity>:<id>" and keeps a sorted index of members scored
// by first-write sequence so Load preserves write order.
type Gateway struct {
	client *goredis.Client
	prefix string
}

// NewGateway wraps an existing client.
func NewGateway(client *goredis.Client, prefix string) *Gateway {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Gateway{client: client, prefix: prefix}
}

// Open dials addr and verifies the connection.
func Open(ctx context.Context, addr, prefix string) (*Gateway, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewGateway(client, prefix), nil
}

func (g *Gateway) indexKey() string { return g.prefix + ":records" }
func (g *Gateway) seqKey() string   { return g.prefix + ":seq" }

func (g *Gateway) recordKey(member string) string {
	return g.prefix + ":record:" + member
}

func memberFor(entity domain.EntityType, id string) string {
	return string(entity) + ":" + id
}

// Create upserts rec.
func (g *Gateway) Create(ctx context.Context, rec domain.Record) error {
	return g.put(ctx, rec)
}

// Update upserts rec.
func (g *Gateway) Update(ctx context.Context, rec domain.Record) error {
	return g.put(ctx, rec)
}

func (g *Gateway) put(ctx context.Context, rec domain.Record) error {
	if rec.Entity == "" || rec.ID == "" {
		return fmt.Errorf("record requires entity and id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", rec.Entity, rec.ID, err)
	}
	seq, err := g.client.Incr(ctx, g.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}
	member := memberFor(rec.Entity, rec.ID)
	pipe := g.client.TxPipeline()
	pipe.Set(ctx, g.recordKey(member), data, 0)
	pipe.ZAddNX(ctx, g.indexKey(), &goredis.Z{Score: float64(seq), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write %s: %w", member, err)
	}
	return nil
}

// Delete removes a record. Missing records are not an error.
func (g *Gateway) Delete(ctx context.Context, entity domain.EntityType, id string) error {
	member := memberFor(entity, id)
	pipe := g.client.TxPipeline()
	pipe.Del(ctx, g.recordKey(member))
	pipe.ZRem(ctx, g.indexKey(), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", member, err)
	}
	return nil
}

// Load returns every indexed record in first-write order. Index members whose
// record key has vanished are skipped.
func (g *Gateway) Load(ctx context.Context) ([]domain.Record, error) {
	members, err := g.client.ZRange(ctx, g.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	pipe := g.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(members))
	for i, member := range members {
		cmds[i] = pipe.Get(ctx, g.recordKey(member))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	out := make([]domain.Record, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", members[i], err)
		}
		var rec domain.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", members[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying client.
func (g *Gateway) Close() error { return g.client.Close() }

// Prefix returns the key namespace.
func (g *Gateway) Prefix() string { return g.prefix }
