package payment

import "context"

// Gateway is the payment contract consumed by the order saga.
//
// Charge may fail for domain reasons (ErrDeclined, never retried by the
// saga) or infrastructure reasons (transport errors, surfaced as-is so the
// caller can classify them as retryable).
type Gateway interface {
	// Validate rejects unsupported methods (ErrInvalidMethod) and
	// non-positive amounts (ErrInvalidAmount).
	Validate(ctx context.Context, method string, amount int64) error

	// Charge processes a payment for the order, returning the completed
	// Payment record on success.
	Charge(ctx context.Context, orderID, customer string, amount int64, method string) (*Payment, error)

	// Refund reverses a completed payment.
	Refund(ctx context.Context, paymentID string) (*Payment, error)
}

// Ledger exposes the gateway's payment records for read operations.
type Ledger interface {
	Get(ctx context.Context, paymentID string) (*Payment, error)
	List(ctx context.Context) ([]*Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Payment, error)
}
