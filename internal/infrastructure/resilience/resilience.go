package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	dominv "orderflow/internal/domain/inventory"
	dompay "orderflow/internal/domain/payment"
	"orderflow/internal/observability"
)

// Policy bounds the retry loop around a single external call. Only
// infrastructure failures are retried; domain answers (not found, out of
// stock, declined) pass through untouched so the saga stays deterministic.
type Policy struct {
	MaxRetries       uint64
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	BreakerName      string
	FailureThreshold uint32
	OpenTimeout      time.Duration

	// CallTimeout bounds one decorated call end to end, retries included.
	CallTimeout time.Duration
}

func DefaultPolicy(name string) Policy {
	return Policy{
		MaxRetries:       3,
		InitialInterval:  50 * time.Millisecond,
		MaxInterval:      2 * time.Second,
		BreakerName:      name,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
		CallTimeout:      5 * time.Second,
	}
}

// bound applies the per-call timeout when one is configured.
func (p Policy) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.CallTimeout)
}

type executor struct {
	breaker  *gobreaker.CircuitBreaker
	policy   Policy
	log      observability.Logger
	requests observability.Counter
	duration observability.Histogram
	// permanent reports errors that must never be retried.
	permanent func(error) bool
}

func newExecutor(policy Policy, tel observability.Telemetry, permanent func(error) bool) *executor {
	if tel == nil {
		tel = observability.Nop()
	}
	log := tel.Logger().With(observability.F("component", "resilience"))
	threshold := policy.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    policy.BreakerName,
		Timeout: policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Domain answers are not infrastructure failures; only transport
		// faults count toward tripping the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || permanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit_state_change",
				observability.F("breaker", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	})
	return &executor{
		breaker:   cb,
		policy:    policy,
		log:       log,
		requests:  tel.Metrics().Counter(observability.MExternalRequests),
		duration:  tel.Metrics().Histogram(observability.MExternalRequestDuration),
		permanent: permanent,
	}
}

func (e *executor) do(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := e.policy.bound(ctx)
	defer cancel()

	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()
		_, err := e.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		e.record(op, start, err)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Circuit open: fail fast instead of burning the retry budget.
			return backoff.Permanent(err)
		}
		if e.permanent(err) {
			return backoff.Permanent(err)
		}
		e.log.Warn("retryable_call_failed",
			observability.F("op", op),
			observability.F("attempt", attempt),
			observability.F("error", err.Error()),
		)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	if e.policy.InitialInterval > 0 {
		bo.InitialInterval = e.policy.InitialInterval
	}
	if e.policy.MaxInterval > 0 {
		bo.MaxInterval = e.policy.MaxInterval
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, e.policy.MaxRetries), ctx))
}

func (e *executor) record(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.requests.Add(1,
		observability.L("target", e.policy.BreakerName),
		observability.L("op", op),
		observability.L("outcome", outcome),
	)
	e.duration.Observe(time.Since(start).Seconds(),
		observability.L("target", e.policy.BreakerName),
		observability.L("op", op),
	)
}

// InventoryStore decorates a Store with retry and circuit breaking. The saga
// composes against the same interface and never sees the wrapper.
type InventoryStore struct {
	next dominv.Store
	exec *executor
}

func WrapInventory(next dominv.Store, policy Policy, tel observability.Telemetry) *InventoryStore {
	return &InventoryStore{
		next: next,
		exec: newExecutor(policy, tel, inventoryPermanent),
	}
}

func inventoryPermanent(err error) bool {
	return errors.Is(err, dominv.ErrNotFound) ||
		errors.Is(err, dominv.ErrInsufficientStock) ||
		errors.Is(err, dominv.ErrInvalidQuantity) ||
		errors.Is(err, dominv.ErrInvalidStock)
}

func (s *InventoryStore) Get(ctx context.Context, productID string) (*dominv.Item, error) {
	var item *dominv.Item
	err := s.exec.do(ctx, "inventory.get", func(ctx context.Context) error {
		var err error
		item, err = s.next.Get(ctx, productID)
		return err
	})
	return item, err
}

func (s *InventoryStore) List(ctx context.Context) ([]*dominv.Item, error) {
	var items []*dominv.Item
	err := s.exec.do(ctx, "inventory.list", func(ctx context.Context) error {
		var err error
		items, err = s.next.List(ctx)
		return err
	})
	return items, err
}

func (s *InventoryStore) CheckAvailability(ctx context.Context, productID string, quantity int) (*dominv.Availability, error) {
	var avail *dominv.Availability
	err := s.exec.do(ctx, "inventory.check", func(ctx context.Context) error {
		var err error
		avail, err = s.next.CheckAvailability(ctx, productID, quantity)
		return err
	})
	return avail, err
}

// Reserve retries are safe because reservations are keyed by ref: a replayed
// reserve of an already-held ref is a no-op in the store.
func (s *InventoryStore) Reserve(ctx context.Context, productID string, quantity int, ref string) (int, error) {
	var remaining int
	err := s.exec.do(ctx, "inventory.reserve", func(ctx context.Context) error {
		var err error
		remaining, err = s.next.Reserve(ctx, productID, quantity, ref)
		return err
	})
	return remaining, err
}

func (s *InventoryStore) Release(ctx context.Context, productID string, ref string) (int, error) {
	var stock int
	err := s.exec.do(ctx, "inventory.release", func(ctx context.Context) error {
		var err error
		stock, err = s.next.Release(ctx, productID, ref)
		return err
	})
	return stock, err
}

func (s *InventoryStore) SetStock(ctx context.Context, productID string, stock int) (*dominv.Item, error) {
	var item *dominv.Item
	err := s.exec.do(ctx, "inventory.set_stock", func(ctx context.Context) error {
		var err error
		item, err = s.next.SetStock(ctx, productID, stock)
		return err
	})
	return item, err
}

// PaymentGateway decorates a Gateway. Charge is deliberately NOT retried:
// replaying a charge without an idempotency key on the processor side could
// double-bill, so only Validate and Refund get the retry loop; Charge still
// goes through the breaker for fail-fast.
type PaymentGateway struct {
	next dompay.Gateway
	exec *executor
}

func WrapPayment(next dompay.Gateway, policy Policy, tel observability.Telemetry) *PaymentGateway {
	return &PaymentGateway{
		next: next,
		exec: newExecutor(policy, tel, paymentPermanent),
	}
}

func paymentPermanent(err error) bool {
	return errors.Is(err, dompay.ErrInvalidMethod) ||
		errors.Is(err, dompay.ErrInvalidAmount) ||
		errors.Is(err, dompay.ErrDeclined) ||
		errors.Is(err, dompay.ErrNotFound) ||
		errors.Is(err, dompay.ErrAlreadyRefunded) ||
		errors.Is(err, dompay.ErrNotRefundable)
}

func (g *PaymentGateway) Validate(ctx context.Context, method string, amount int64) error {
	return g.exec.do(ctx, "payment.validate", func(ctx context.Context) error {
		return g.next.Validate(ctx, method, amount)
	})
}

func (g *PaymentGateway) Charge(ctx context.Context, orderID, customer string, amount int64, method string) (*dompay.Payment, error) {
	ctx, cancel := g.exec.policy.bound(ctx)
	defer cancel()

	start := time.Now()
	result, err := g.exec.breaker.Execute(func() (any, error) {
		return g.next.Charge(ctx, orderID, customer, amount, method)
	})
	g.exec.record("payment.charge", start, err)
	if err != nil {
		return nil, err
	}
	p, _ := result.(*dompay.Payment)
	return p, nil
}

func (g *PaymentGateway) Refund(ctx context.Context, paymentID string) (*dompay.Payment, error) {
	var p *dompay.Payment
	err := g.exec.do(ctx, "payment.refund", func(ctx context.Context) error {
		var err error
		p, err = g.next.Refund(ctx, paymentID)
		return err
	})
	return p, err
}
