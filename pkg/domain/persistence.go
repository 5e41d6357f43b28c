package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)
	DeleteItem(id string) error
	FindItem(id string) (Item, bool)
	AttachKitChild(kitID, childID string) error
	DetachKitChild(kitID, childID string) error
	DetachAllKitChildren(kitID string) ([]string, error)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListItems() []Item
	FindItem(id string) (Item, bool)
}

// PersistentStore is the local, authoritative entity store used by the
// service layer. Remote durability is handled separately by a RecordGateway.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetItem(id string) (Item, bool)
	ListItems() []Item
}

// Record is the unit written to a remote backend. Reservations and
// maintenance records carry their owning item in ParentID.
type Record struct {
	Entity    EntityType      `json:"entity"`
	ID        string          `json:"id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RecordGateway is the remote persistence collaborator. Writes are
// last-write-wins; Load returns every stored record in write order.
type RecordGateway interface {
	Create(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, entity EntityType, id string) error
	Load(ctx context.Context) ([]Record, error)
	Close() error
}
