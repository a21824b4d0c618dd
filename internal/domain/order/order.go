package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrStale             = errors.New("order: status changed concurrently")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("order: unit price must be zero or greater")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusValidatingPayment Status = "validating_payment"
	StatusReserving         Status = "reserving"
	StatusCharging          Status = "charging"
	StatusConfirmed         Status = "confirmed"
	StatusCompensating      Status = "compensating"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// transitions holds the legal directed edges of the order lifecycle.
// CONFIRMED -> COMPENSATING claims a cancellation; COMPENSATING -> CONFIRMED
// returns the claim when the stock release could not be performed.
var transitions = map[Status][]Status{
	StatusPending:           {StatusValidatingPayment, StatusReserving, StatusFailed},
	StatusValidatingPayment: {StatusReserving, StatusFailed},
	StatusReserving:         {StatusCharging, StatusConfirmed, StatusFailed},
	StatusCharging:          {StatusConfirmed, StatusCompensating},
	StatusConfirmed:         {StatusCompensating},
	StatusCompensating:      {StatusFailed, StatusCancelled, StatusConfirmed},
	StatusFailed:            nil,
	StatusCancelled:         nil,
}

// CanTransition reports whether moving an order from one status to another
// is a legal edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further saga progress.
func Terminal(s Status) bool {
	return s == StatusFailed || s == StatusCancelled
}

// Order is the unit of the saga. TotalPrice is derived once at construction
// and never recomputed, so a catalog price change mid-saga cannot alter the
// amount already validated or charged. Prices are integer cents.
type Order struct {
	ID            string
	CustomerName  string
	ProductID     string
	ProductName   string
	Quantity      int
	UnitPrice     int64
	TotalPrice    int64
	PaymentMethod string
	Status        Status
	PaymentID     string
	TransactionID string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	CancelledAt   *time.Time
}

func New(id, customer, productID, productName, paymentMethod string, quantity int, unitPrice int64) (*Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if unitPrice < 0 {
		return nil, ErrInvalidPrice
	}

	now := time.Now().UTC()
	return &Order{
		ID:            id,
		CustomerName:  customer,
		ProductID:     productID,
		ProductName:   productName,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		TotalPrice:    unitPrice * int64(quantity),
		PaymentMethod: paymentMethod,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Advance moves the order along one legal edge.
func (o *Order) Advance(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.touch()
	return nil
}

// Confirm finalises the no-payment path.
func (o *Order) Confirm() error {
	return o.Advance(StatusConfirmed)
}

// ConfirmPaid finalises the payment path, recording the gateway identifiers.
func (o *Order) ConfirmPaid(paymentID, transactionID string) error {
	if err := o.Advance(StatusConfirmed); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.PaymentID = paymentID
	o.TransactionID = transactionID
	o.PaidAt = &now
	return nil
}

// Fail marks the saga as failed, keeping the reason for later inspection.
func (o *Order) Fail(reason string) error {
	if err := o.Advance(StatusFailed); err != nil {
		return err
	}
	o.FailureReason = reason
	return nil
}

// Cancel completes a claimed cancellation (COMPENSATING -> CANCELLED).
func (o *Order) Cancel() error {
	if err := o.Advance(StatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.CancelledAt = &now
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so stored orders never alias caller memory.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.PaidAt != nil {
		t := *o.PaidAt
		clone.PaidAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		clone.CancelledAt = &t
	}
	return &clone
}
