package payment

import (
	"context"
	"errors"

	domain "orderflow/internal/domain/payment"
	"orderflow/internal/observability"
)

var ErrNotFound = domain.ErrNotFound

// Service exposes the payment record operations: queries over the gateway's
// ledger, refunds, and aggregate stats.
type Service struct {
	gateway domain.Gateway
	ledger  domain.Ledger
	log     observability.Logger
}

func NewService(gateway domain.Gateway, ledger domain.Ledger, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		gateway: gateway,
		ledger:  ledger,
		log:     tel.Logger().With(observability.F("component", "payment_service")),
	}
}

func (s *Service) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, errors.New("payment: id is required")
	}
	return s.ledger.Get(ctx, paymentID)
}

func (s *Service) List(ctx context.Context) ([]*domain.Payment, error) {
	return s.ledger.List(ctx)
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	if orderID == "" {
		return nil, errors.New("payment: order id is required")
	}
	return s.ledger.ListByOrder(ctx, orderID)
}

// Refund reverses a completed payment. A refunded payment implies a prior
// completed payment; refunding twice fails with ErrAlreadyRefunded.
func (s *Service) Refund(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, errors.New("payment: id is required")
	}
	p, err := s.gateway.Refund(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	s.log.Info("payment_refunded",
		observability.F("payment_id", p.PaymentID),
		observability.F("order_id", p.OrderID),
		observability.F("amount", p.Amount),
	)
	return p, nil
}

// Stats aggregates the ledger by payment status.
type Stats struct {
	TotalPayments     int
	CompletedPayments int
	FailedPayments    int
	RefundedPayments  int
	TotalRevenue      int64
	RefundedAmount    int64
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	payments, err := s.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalPayments: len(payments)}
	for _, p := range payments {
		switch p.Status {
		case domain.StatusCompleted:
			stats.CompletedPayments++
			stats.TotalRevenue += p.Amount
		case domain.StatusFailed:
			stats.FailedPayments++
		case domain.StatusRefunded:
			stats.RefundedPayments++
			stats.RefundedAmount += p.Amount
		}
	}
	return stats, nil
}
