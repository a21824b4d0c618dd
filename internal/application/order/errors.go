package order

import (
	"context"
	"errors"
	"fmt"

	dominv "orderflow/internal/domain/inventory"
	domain "orderflow/internal/domain/order"
	dompay "orderflow/internal/domain/payment"
)

// Kind classifies saga failures for callers. Kinds map onto transport status
// codes in the presentation layer; the saga itself only ever branches on
// whether a failure happened before or after the stock reservation.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindInvalidPayment     Kind = "invalid_payment"
	KindPaymentRejected    Kind = "payment_rejected"
	KindUnavailable        Kind = "unavailable"
	KindTimeout            Kind = "timeout"
	KindAlreadyCancelled   Kind = "already_cancelled"
	KindConflict           Kind = "conflict"
	KindCompensationFailed Kind = "compensation_failed"
	KindInternal           Kind = "internal"
)

// Error is the structured failure returned by every public operation. When
// the saga already persisted an order, OrderID lets the caller inspect its
// final state via Get.
type Error struct {
	Kind    Kind
	Message string
	OrderID string
	cause   error
}

func (e *Error) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s: %s (order %s)", e.Kind, e.Message, e.OrderID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a structured error; cause may be nil.
func E(kind Kind, orderID, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, OrderID: orderID, cause: cause}
}

// KindOf extracts the failure kind, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the failure is an infrastructure fault that a
// resilience layer may retry. Domain failures are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// classifyInventory maps inventory store failures. Anything that is not a
// domain answer is an unreachable collaborator.
func classifyInventory(orderID string, err error) *Error {
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		return E(KindNotFound, orderID, "product not found", err)
	case errors.Is(err, dominv.ErrInsufficientStock):
		return E(KindInsufficientStock, orderID, "not enough stock", err)
	case errors.Is(err, dominv.ErrInvalidQuantity), errors.Is(err, dominv.ErrInvalidStock):
		return E(KindValidation, orderID, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return E(KindTimeout, orderID, "inventory store timed out", err)
	default:
		return E(KindUnavailable, orderID, "inventory store unavailable", err)
	}
}

// classifyPayment distinguishes domain declines (never retried) from
// infrastructure faults (retryable by the resilience layer only).
func classifyPayment(orderID string, err error) *Error {
	switch {
	case errors.Is(err, dompay.ErrInvalidMethod), errors.Is(err, dompay.ErrInvalidAmount):
		return E(KindInvalidPayment, orderID, err.Error(), err)
	case errors.Is(err, dompay.ErrDeclined):
		return E(KindPaymentRejected, orderID, "payment declined", err)
	case errors.Is(err, context.DeadlineExceeded):
		return E(KindTimeout, orderID, "payment gateway timed out", err)
	default:
		return E(KindUnavailable, orderID, "payment gateway unavailable", err)
	}
}

// classifyRepository maps order store failures.
func classifyRepository(orderID string, err error) *Error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return E(KindNotFound, orderID, "order not found", err)
	case errors.Is(err, domain.ErrConflict):
		return E(KindConflict, orderID, "order already exists", err)
	case errors.Is(err, domain.ErrStale):
		return E(KindConflict, orderID, "order changed concurrently", err)
	case errors.Is(err, context.DeadlineExceeded):
		return E(KindTimeout, orderID, "order store timed out", err)
	default:
		return E(KindUnavailable, orderID, "order store unavailable", err)
	}
}
