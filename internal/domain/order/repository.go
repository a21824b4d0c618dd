package order

import "context"

// Repository persists orders. Implementations own id generation (NextID is a
// monotonic sequence, never a bare shared counter) and must make Transition
// an atomic compare-on-status update so concurrent cancellations race safely.
type Repository interface {
	// NextID returns the next sequential order id (ORD00001, ORD00002, ...).
	NextID(ctx context.Context) (string, error)

	// Insert stores a new order, failing with ErrConflict on a duplicate id.
	Insert(ctx context.Context, o *Order) error

	// Get returns the order or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)

	// List returns all orders in insertion order.
	List(ctx context.Context) ([]*Order, error)

	// Update overwrites the stored order, failing with ErrNotFound when absent.
	Update(ctx context.Context, o *Order) error

	// Transition atomically applies a status change to the stored order,
	// guarded by an optimistic precondition on the current status. It fails
	// with ErrStale when the current status is not from and ErrNotFound when
	// the order is absent; any error returned by apply aborts the write and
	// is propagated unchanged.
	Transition(ctx context.Context, id string, from Status, apply func(*Order) error) (*Order, error)
}
