package order

import (
	"context"
	"errors"
	"time"

	domain "orderflow/internal/domain/order"
	dompay "orderflow/internal/domain/payment"
	"orderflow/internal/observability"
	"orderflow/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	componentName = "order_orchestrator"
	spanPrefix    = "Saga."
)

// Service drives the order saga. It is the sole writer of order status
// transitions; stock and payment records stay behind their own contracts.
type Service struct {
	orders    domain.Repository
	inventory InventoryPort
	payments  PaymentPort
	tel       observability.Telemetry

	log           observability.Logger
	reqCounter    observability.Counter
	durHistogram  observability.Histogram
	compensations observability.Counter
}

func NewService(orders domain.Repository, inventory InventoryPort, payments PaymentPort, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		orders:        orders,
		inventory:     inventory,
		payments:      payments,
		tel:           tel,
		log:           tel.Logger().With(observability.F("component", componentName)),
		reqCounter:    tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram:  tel.Metrics().Histogram(observability.MUsecaseDuration),
		compensations: tel.Metrics().Counter(observability.MCompensations),
	}
}

type CreateOrderInput struct {
	CustomerName string
	ProductID    string
	Quantity     int
}

type CreateOrderWithPaymentInput struct {
	CustomerName  string
	ProductID     string
	Quantity      int
	PaymentMethod string
}

// CreateOrder is the no-payment path: product lookup, advisory availability
// check, atomic reservation, then a single insert of the confirmed order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *domain.Order, err error) {
	ctx, finish := s.instrument(ctx, "order.create", &err)
	defer finish()
	logger := logctx.FromOr(ctx, s.log)

	if verr := validateBase(input.CustomerName, input.ProductID, input.Quantity); verr != nil {
		return nil, verr
	}

	item, ierr := s.inventory.Get(ctx, input.ProductID)
	if ierr != nil {
		err = classifyInventory("", ierr)
		return nil, err
	}

	avail, aerr := s.inventory.CheckAvailability(ctx, input.ProductID, input.Quantity)
	if aerr != nil {
		err = classifyInventory("", aerr)
		return nil, err
	}
	if !avail.Available {
		err = E(KindInsufficientStock, "", "not enough stock", nil)
		return nil, err
	}

	id, nerr := s.orders.NextID(ctx)
	if nerr != nil {
		err = classifyRepository("", nerr)
		return nil, err
	}

	o, derr := domain.New(id, input.CustomerName, input.ProductID, item.Name, "", input.Quantity, item.Price)
	if derr != nil {
		err = E(KindValidation, "", derr.Error(), derr)
		return nil, err
	}

	// The advisory check above is UX only; Reserve re-checks atomically.
	if _, rerr := s.inventory.Reserve(ctx, o.ProductID, o.Quantity, o.ID); rerr != nil {
		err = classifyInventory("", rerr)
		return nil, err
	}

	if aerr := o.Advance(domain.StatusReserving); aerr != nil {
		err = E(KindInternal, o.ID, aerr.Error(), aerr)
		return nil, err
	}
	if cerr := o.Confirm(); cerr != nil {
		err = E(KindInternal, o.ID, cerr.Error(), cerr)
		return nil, err
	}

	if serr := s.orders.Insert(ctx, o); serr != nil {
		// The reservation exists but the order does not: unwind it.
		if _, relErr := s.inventory.Release(ctx, o.ProductID, o.ID); relErr != nil {
			logger.Error("reservation_release_failed",
				observability.F("order_id", o.ID),
				observability.F("error", relErr.Error()),
			)
			err = E(KindCompensationFailed, o.ID, "order insert and reservation release both failed", relErr)
			return nil, err
		}
		err = classifyRepository(o.ID, serr)
		return nil, err
	}

	logger.Info("order_confirmed",
		observability.F("order_id", o.ID),
		observability.F("product_id", o.ProductID),
		observability.F("quantity", o.Quantity),
	)
	return o, nil
}

// CreateOrderWithPayment runs the full saga: product lookup and availability
// check, payment validation, atomic reservation, then the charge. Failures
// after the reservation release it exactly once before the order is failed.
func (s *Service) CreateOrderWithPayment(ctx context.Context, input CreateOrderWithPaymentInput) (_ *domain.Order, err error) {
	ctx, finish := s.instrument(ctx, "order.create_with_payment", &err)
	defer finish()
	logger := logctx.FromOr(ctx, s.log)

	if verr := validateBase(input.CustomerName, input.ProductID, input.Quantity); verr != nil {
		return nil, verr
	}
	if input.PaymentMethod == "" {
		return nil, E(KindValidation, "", "payment method is required", nil)
	}

	item, ierr := s.inventory.Get(ctx, input.ProductID)
	if ierr != nil {
		err = classifyInventory("", ierr)
		return nil, err
	}

	avail, aerr := s.inventory.CheckAvailability(ctx, input.ProductID, input.Quantity)
	if aerr != nil {
		err = classifyInventory("", aerr)
		return nil, err
	}
	if !avail.Available {
		err = E(KindInsufficientStock, "", "not enough stock", nil)
		return nil, err
	}

	id, nerr := s.orders.NextID(ctx)
	if nerr != nil {
		err = classifyRepository("", nerr)
		return nil, err
	}

	o, derr := domain.New(id, input.CustomerName, input.ProductID, item.Name, input.PaymentMethod, input.Quantity, item.Price)
	if derr != nil {
		err = E(KindValidation, "", derr.Error(), derr)
		return nil, err
	}

	if serr := s.orders.Insert(ctx, o); serr != nil {
		err = classifyRepository(o.ID, serr)
		return nil, err
	}

	var charged *dompay.Payment

	steps := []sagaStep{
		{
			name: "validate_payment",
			run: func(ctx context.Context) error {
				if err := s.advance(ctx, o, domain.StatusValidatingPayment); err != nil {
					return err
				}
				if err := s.payments.Validate(ctx, o.PaymentMethod, o.TotalPrice); err != nil {
					return classifyPayment(o.ID, err)
				}
				return nil
			},
		},
		{
			name: "reserve_stock",
			run: func(ctx context.Context) error {
				if err := s.advance(ctx, o, domain.StatusReserving); err != nil {
					return err
				}
				if _, err := s.inventory.Reserve(ctx, o.ProductID, o.Quantity, o.ID); err != nil {
					return classifyInventory(o.ID, err)
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				_, err := s.inventory.Release(ctx, o.ProductID, o.ID)
				return err
			},
		},
		{
			name: "charge_payment",
			run: func(ctx context.Context) error {
				if err := s.advance(ctx, o, domain.StatusCharging); err != nil {
					return err
				}
				p, err := s.payments.Charge(ctx, o.ID, o.CustomerName, o.TotalPrice, o.PaymentMethod)
				if err != nil {
					return classifyPayment(o.ID, err)
				}
				charged = p
				return nil
			},
		},
	}

	if sagaErr := s.runSteps(ctx, logger, o, steps); sagaErr != nil {
		s.markFailed(ctx, logger, o, sagaErr)
		err = withOrderID(sagaErr, o.ID)
		return nil, err
	}

	if cerr := o.ConfirmPaid(charged.PaymentID, charged.TransactionID); cerr != nil {
		err = E(KindInternal, o.ID, cerr.Error(), cerr)
		return nil, err
	}
	if uerr := s.orders.Update(ctx, o); uerr != nil {
		// The charge went through but the confirmation write did not: an
		// orphaned external payment. Surface it loudly instead of retrying.
		logger.Error("orphaned_payment",
			observability.F("order_id", o.ID),
			observability.F("payment_id", charged.PaymentID),
			observability.F("error", uerr.Error()),
		)
		err = E(KindUnavailable, o.ID, "payment captured but order confirmation was not persisted", uerr)
		return nil, err
	}

	logger.Info("order_confirmed",
		observability.F("order_id", o.ID),
		observability.F("payment_id", charged.PaymentID),
		observability.F("total_price", o.TotalPrice),
	)
	return o, nil
}

// CancelOrder flips a confirmed order to cancelled after releasing its
// reservation. The CONFIRMED -> COMPENSATING claim is an atomic
// compare-on-status update, so concurrent cancellations race safely: the
// loser observes AlreadyCancelled or Conflict and releases nothing.
func (s *Service) CancelOrder(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, finish := s.instrument(ctx, "order.cancel", &err)
	defer finish()
	logger := logctx.FromOr(ctx, s.log)

	if id == "" {
		return nil, E(KindValidation, "", "order id is required", nil)
	}

	o, gerr := s.orders.Get(ctx, id)
	if gerr != nil {
		err = classifyRepository(id, gerr)
		return nil, err
	}

	switch o.Status {
	case domain.StatusConfirmed:
	case domain.StatusCancelled:
		err = E(KindAlreadyCancelled, id, "order already cancelled", nil)
		return nil, err
	case domain.StatusCompensating:
		err = E(KindConflict, id, "cancellation already in progress", nil)
		return nil, err
	default:
		err = E(KindConflict, id, "only confirmed orders can be cancelled", nil)
		return nil, err
	}

	if _, terr := s.orders.Transition(ctx, id, domain.StatusConfirmed, func(claimed *domain.Order) error {
		return claimed.Advance(domain.StatusCompensating)
	}); terr != nil {
		err = s.classifyCancelRace(ctx, id, terr)
		return nil, err
	}

	if _, relErr := s.inventory.Release(ctx, o.ProductID, id); relErr != nil {
		// Return the claim; the order stays CONFIRMED and the caller retries.
		if _, backErr := s.orders.Transition(ctx, id, domain.StatusCompensating, func(claimed *domain.Order) error {
			return claimed.Advance(domain.StatusConfirmed)
		}); backErr != nil {
			logger.Error("cancel_unclaim_failed",
				observability.F("order_id", id),
				observability.F("error", backErr.Error()),
			)
		}
		err = E(KindCompensationFailed, id, "stock release failed; cancellation incomplete, retry", relErr)
		return nil, err
	}

	cancelled, terr := s.orders.Transition(ctx, id, domain.StatusCompensating, func(claimed *domain.Order) error {
		return claimed.Cancel()
	})
	if terr != nil {
		err = classifyRepository(id, terr)
		return nil, err
	}

	logger.Info("order_cancelled",
		observability.F("order_id", id),
		observability.F("product_id", cancelled.ProductID),
		observability.F("quantity", cancelled.Quantity),
	)
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, E(KindValidation, "", "order id is required", nil)
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, classifyRepository(id, err)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, classifyRepository("", err)
	}
	return orders, nil
}

// Stats is a pure aggregation over the order store; no saga semantics.
type Stats struct {
	TotalOrders     int
	ConfirmedOrders int
	CancelledOrders int
	FailedOrders    int
	TotalRevenue    int64
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, classifyRepository("", err)
	}

	stats := &Stats{TotalOrders: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case domain.StatusConfirmed:
			stats.ConfirmedOrders++
			stats.TotalRevenue += o.TotalPrice
		case domain.StatusCancelled:
			stats.CancelledOrders++
		case domain.StatusFailed:
			stats.FailedOrders++
		}
	}
	return stats, nil
}

// advance moves the in-flight order one step and persists it.
func (s *Service) advance(ctx context.Context, o *domain.Order, to domain.Status) error {
	if err := o.Advance(to); err != nil {
		return E(KindInternal, o.ID, err.Error(), err)
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return classifyRepository(o.ID, err)
	}
	return nil
}

// markFailed records the terminal FAILED state after the saga (and any
// compensation) has finished. The failure reason is kept on the order.
func (s *Service) markFailed(ctx context.Context, logger observability.Logger, o *domain.Order, cause error) {
	if domain.Terminal(o.Status) {
		return
	}
	if !domain.CanTransition(o.Status, domain.StatusFailed) {
		if err := o.Advance(domain.StatusCompensating); err != nil {
			logger.Error("order_fail_transition",
				observability.F("order_id", o.ID),
				observability.F("error", err.Error()),
			)
			return
		}
	}
	if err := o.Fail(cause.Error()); err != nil {
		logger.Error("order_fail_transition",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
		return
	}
	if err := s.orders.Update(ctx, o); err != nil {
		logger.Error("order_fail_update",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
}

// classifyCancelRace turns a lost cancellation claim into the caller answer.
func (s *Service) classifyCancelRace(ctx context.Context, id string, terr error) error {
	current, gerr := s.orders.Get(ctx, id)
	if gerr == nil && current.Status == domain.StatusCancelled {
		return E(KindAlreadyCancelled, id, "order already cancelled", terr)
	}
	return classifyRepository(id, terr)
}

// instrument opens a span and records RED metrics and a completion log when
// the returned finish func runs.
func (s *Service) instrument(ctx context.Context, useCase string, errp *error) (context.Context, func()) {
	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+useCase,
		attribute.String("use_case", useCase),
	)
	start := time.Now()

	return ctx, func() {
		lat := time.Since(start).Seconds()
		outcome := "success"
		if *errp != nil {
			outcome = "error"
			span.RecordError(*errp)
			span.SetStatus(codes.Error, string(KindOf(*errp)))
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat,
			observability.L("use_case", useCase),
		)

		fields := []observability.Field{
			observability.F("use_case", useCase),
			observability.F("outcome", outcome),
			observability.F("latency_seconds", lat),
		}
		if *errp != nil {
			fields = append(fields, observability.F("error", (*errp).Error()))
		}
		s.log.Info("use_case_done", fields...)
	}
}

func validateBase(customer, productID string, quantity int) *Error {
	if customer == "" {
		return E(KindValidation, "", "customer name is required", nil)
	}
	if productID == "" {
		return E(KindValidation, "", "product id is required", nil)
	}
	if quantity <= 0 {
		return E(KindValidation, "", "quantity must be greater than zero", nil)
	}
	return nil
}

// withOrderID stamps the persisted order id onto a structured error so the
// caller can inspect the failed order.
func withOrderID(err error, orderID string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.OrderID == "" {
			e.OrderID = orderID
		}
		return e
	}
	return E(KindInternal, orderID, err.Error(), err)
}
