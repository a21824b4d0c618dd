package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("payment: not found")
	ErrInvalidMethod   = errors.New("payment: unsupported payment method")
	ErrInvalidAmount   = errors.New("payment: amount must be greater than zero")
	ErrDeclined        = errors.New("payment: declined by processor")
	ErrAlreadyRefunded = errors.New("payment: already refunded")
	ErrNotRefundable   = errors.New("payment: only completed payments can be refunded")
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment is a charge attempt recorded by the gateway. Amount is integer
// cents. Exactly zero or one completed Payment exists per confirmed order.
type Payment struct {
	PaymentID           string
	OrderID             string
	CustomerName        string
	Amount              int64
	Method              string
	Status              Status
	TransactionID       string
	RefundTransactionID string
	ErrorCode           string
	ProcessedAt         time.Time
	RefundedAt          *time.Time
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		clone.RefundedAt = &t
	}
	return &clone
}
