package inventory

import "context"

// Availability is the advisory answer of CheckAvailability. It is a hint for
// fast-fail UX only; Reserve re-checks under its own atomicity and is the
// sole authority on whether stock is actually granted.
type Availability struct {
	ProductID    string
	Requested    int
	CurrentStock int
	Available    bool
}

// Store is the inventory contract consumed by the order saga.
//
// Reserve performs an atomic check-and-decrement: it must never rely on a
// prior CheckAvailability remaining valid. Reservations are keyed by ref
// (the order id), which makes Release idempotent: releasing a ref that was
// never reserved, or was already released, is a no-op.
type Store interface {
	// Get returns the catalog item or ErrNotFound.
	Get(ctx context.Context, productID string) (*Item, error)

	// List returns the whole catalog.
	List(ctx context.Context) ([]*Item, error)

	// CheckAvailability reports whether quantity units could currently be
	// reserved. Advisory only.
	CheckAvailability(ctx context.Context, productID string, quantity int) (*Availability, error)

	// Reserve atomically decrements stock by quantity under the given ref,
	// returning the remaining stock. Fails with ErrInsufficientStock when
	// the decrement would oversell and ErrNotFound when the product is absent.
	Reserve(ctx context.Context, productID string, quantity int, ref string) (int, error)

	// Release returns the reservation held under ref to stock, returning the
	// resulting stock level. Releasing an unknown or already-released ref
	// leaves stock untouched.
	Release(ctx context.Context, productID string, ref string) (int, error)

	// SetStock overwrites the stock level (admin operation).
	SetStock(ctx context.Context, productID string, stock int) (*Item, error)
}
