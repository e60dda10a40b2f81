package domain

import (
	"context"
	"time"
)

// MarketStore is the single shared mutable resource of the ledger: bounded,
// slotted storage for markets plus a strictly increasing id counter.
// Implementations must serialize mutations internally (every write is a
// read-modify-write of the whole document) and must durably persist before
// returning.
type MarketStore interface {
	// NextID atomically reserves and returns the next market id.
	NextID(ctx context.Context) (int64, error)

	// Get returns the market with the given id, or ErrNotFound if the slot
	// is empty or has been recycled for a newer market.
	Get(ctx context.Context, id int64) (Market, error)

	// Put upserts the market into its slot, overwriting any prior occupant.
	Put(ctx context.Context, m Market) error

	// Update applies fn to the stored market under the store's write lock
	// and persists the result, returning the updated market. It returns
	// ErrNotFound if the market is absent and leaves the store untouched if
	// fn returns an error.
	Update(ctx context.Context, id int64, fn func(*Market) error) (Market, error)

	// ListAll returns every stored market, ordered by id.
	ListAll(ctx context.Context) ([]Market, error)

	// ListActive returns stored markets still in StateOpen, ordered by id.
	ListActive(ctx context.Context) ([]Market, error)
}

// MarketArchiver receives markets that are about to be evicted from the
// bounded store so their records survive the retention horizon.
type MarketArchiver interface {
	ArchiveMarket(ctx context.Context, m Market) error
}

// Event is a market lifecycle notification pushed to connected front ends.
type Event struct {
	Type     string    `json:"type"` // market_created, entry_placed, market_settled, market_cancelled
	MarketID int64     `json:"market_id"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload,omitempty"`
}

// EventSink receives ledger events for live distribution. Publish must not
// block the caller.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// RateLimiter bounds request rates on the unauthenticated market-creation
// surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides a distributed mutual-exclusion layer for deployments
// running more than one ledger instance against shared storage. Acquire
// returns an unlock function, or ErrLockHeld if another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
