package paymentsim

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	domain "orderflow/internal/domain/payment"
)

// SupportedMethods are the payment methods the simulated processor accepts.
var SupportedMethods = []string{"credit_card", "debit_card", "paypal", "bank_transfer"}

type IDGenerator interface {
	NewID() string
}

// Gateway simulates an external payment processor: charges succeed with a
// configurable probability and every attempt, including declined ones, is
// recorded in the ledger. It implements both payment.Gateway and
// payment.Ledger.
type Gateway struct {
	mu          sync.Mutex
	payments    map[string]*domain.Payment
	ids         []string
	seq         int
	successRate float64
	txnIDs      IDGenerator
	rng         *rand.Rand
}

func NewGateway(successRate float64, txnIDs IDGenerator) *Gateway {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Gateway{
		payments:    make(map[string]*domain.Payment),
		successRate: successRate,
		txnIDs:      txnIDs,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Gateway) Validate(ctx context.Context, method string, amount int64) error {
	_ = ctx
	if !methodSupported(method) {
		return domain.ErrInvalidMethod
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (g *Gateway) Charge(ctx context.Context, orderID, customer string, amount int64, method string) (*domain.Payment, error) {
	_ = ctx
	if !methodSupported(method) {
		return nil, domain.ErrInvalidMethod
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	p := &domain.Payment{
		PaymentID:    fmt.Sprintf("PAY%05d", g.seq),
		OrderID:      orderID,
		CustomerName: customer,
		Amount:       amount,
		Method:       method,
		ProcessedAt:  time.Now().UTC(),
	}

	if g.rng.Float64() < g.successRate {
		p.Status = domain.StatusCompleted
		p.TransactionID = g.txnIDs.NewID()
		g.record(p)
		return p.Clone(), nil
	}

	p.Status = domain.StatusFailed
	p.ErrorCode = "INSUFFICIENT_FUNDS"
	g.record(p)
	return p.Clone(), domain.ErrDeclined
}

func (g *Gateway) Refund(ctx context.Context, paymentID string) (*domain.Payment, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch p.Status {
	case domain.StatusRefunded:
		return nil, domain.ErrAlreadyRefunded
	case domain.StatusCompleted:
	default:
		return nil, domain.ErrNotRefundable
	}

	now := time.Now().UTC()
	p.Status = domain.StatusRefunded
	p.RefundedAt = &now
	p.RefundTransactionID = g.txnIDs.NewID()
	return p.Clone(), nil
}

func (g *Gateway) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (g *Gateway) List(ctx context.Context) ([]*domain.Payment, error) {
	_ = ctx

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*domain.Payment, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.payments[id].Clone())
	}
	return out, nil
}

func (g *Gateway) ListByOrder(ctx context.Context, orderID string) ([]*domain.Payment, error) {
	all, err := g.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentID < out[j].PaymentID })
	return out, nil
}

func (g *Gateway) record(p *domain.Payment) {
	g.payments[p.PaymentID] = p
	g.ids = append(g.ids, p.PaymentID)
}

func methodSupported(method string) bool {
	for _, m := range SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}
