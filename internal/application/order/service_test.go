package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "orderflow/internal/domain/inventory"
	domain "orderflow/internal/domain/order"
	"orderflow/internal/infrastructure/id"
	"orderflow/internal/infrastructure/memory"
	"orderflow/internal/infrastructure/paymentsim"
)

type fixture struct {
	service   *Service
	orders    *memory.OrderRepository
	inventory dominv.Store
	gateway   *paymentsim.Gateway
}

func newFixture(t *testing.T, stock int, successRate float64) *fixture {
	t.Helper()

	item, err := dominv.NewItem("PROD002", "Mouse", stock, 2999)
	require.NoError(t, err)

	orders := memory.NewOrderRepository()
	inventory := memory.NewInventoryStore([]*dominv.Item{item})
	gateway := paymentsim.NewGateway(successRate, id.NewUUIDGenerator())

	return &fixture{
		service:   NewService(orders, inventory, gateway, nil),
		orders:    orders,
		inventory: inventory,
		gateway:   gateway,
	}
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	item, err := f.inventory.Get(context.Background(), "PROD002")
	require.NoError(t, err)
	return item.Stock
}

func TestCreateOrderConfirmsAndReserves(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "alice",
		ProductID:    "PROD002",
		Quantity:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, int64(5998), o.TotalPrice)
	assert.Empty(t, o.PaymentID)
	assert.Equal(t, 48, f.stock(t))

	stored, err := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)
}

func TestCreateOrderWithPaymentHappyPath(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      2,
		PaymentMethod: "credit_card",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, int64(5998), o.TotalPrice)
	assert.NotEmpty(t, o.PaymentID)
	assert.NotEmpty(t, o.TransactionID)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, 48, f.stock(t))

	payments, err := f.gateway.ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(5998), payments[0].Amount)
}

func TestCreateOrderWithPaymentDeclineReleasesStock(t *testing.T) {
	f := newFixture(t, 50, 0)

	_, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      2,
		PaymentMethod: "credit_card",
	})
	require.Error(t, err)
	assert.Equal(t, KindPaymentRejected, KindOf(err))

	// The reservation was compensated: all stock is back.
	assert.Equal(t, 50, f.stock(t))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	require.NotEmpty(t, ae.OrderID)

	stored, gerr := f.orders.Get(context.Background(), ae.OrderID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)

	// The declined attempt is still visible in the ledger.
	payments, perr := f.gateway.ListByOrder(context.Background(), ae.OrderID)
	require.NoError(t, perr)
	require.Len(t, payments, 1)
}

func TestValidationFailsBeforeAnySideEffect(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	cases := []CreateOrderWithPaymentInput{
		{CustomerName: "", ProductID: "PROD002", Quantity: 1, PaymentMethod: "paypal"},
		{CustomerName: "alice", ProductID: "", Quantity: 1, PaymentMethod: "paypal"},
		{CustomerName: "alice", ProductID: "PROD002", Quantity: 0, PaymentMethod: "paypal"},
		{CustomerName: "alice", ProductID: "PROD002", Quantity: 1, PaymentMethod: ""},
	}
	for _, input := range cases {
		_, err := f.service.CreateOrderWithPayment(context.Background(), input)
		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
	}

	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 50, f.stock(t))
}

func TestUnknownProduct(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	_, err := f.service.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "alice",
		ProductID:    "PROD999",
		Quantity:     1,
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestInsufficientStockFailsFast(t *testing.T) {
	f := newFixture(t, 3, 1.0)

	_, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      4,
		PaymentMethod: "paypal",
	})
	assert.Equal(t, KindInsufficientStock, KindOf(err))

	orders, lerr := f.orders.List(context.Background())
	require.NoError(t, lerr)
	assert.Empty(t, orders)
	assert.Equal(t, 3, f.stock(t))
}

func TestUnsupportedMethodFailsBeforeReservation(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	_, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      1,
		PaymentMethod: "cash",
	})
	require.Error(t, err)
	assert.Equal(t, KindInvalidPayment, KindOf(err))
	assert.Equal(t, 50, f.stock(t))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	stored, gerr := f.orders.Get(context.Background(), ae.OrderID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	const stock = 10
	const buyers = 16

	f := newFixture(t, stock, 1.0)

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
				CustomerName:  fmt.Sprintf("buyer-%d", i),
				ProductID:     "PROD002",
				Quantity:      1,
				PaymentMethod: "credit_card",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	confirmed, rejected := 0, 0
	for err := range results {
		if err == nil {
			confirmed++
			continue
		}
		rejected++
		assert.Equal(t, KindInsufficientStock, KindOf(err))
	}

	assert.Equal(t, stock, confirmed)
	assert.Equal(t, buyers-stock, rejected)
	assert.Equal(t, 0, f.stock(t))
}

func TestTwoLargeConcurrentOrdersExactlyOneWins(t *testing.T) {
	f := newFixture(t, 10, 1.0)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
				CustomerName:  fmt.Sprintf("buyer-%d", i),
				ProductID:     "PROD002",
				Quantity:      6,
				PaymentMethod: "credit_card",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var errs []error
	for err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.Equal(t, KindInsufficientStock, KindOf(errs[0]))
	assert.Equal(t, 4, f.stock(t))
}

func TestCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      5,
		PaymentMethod: "paypal",
	})
	require.NoError(t, err)
	require.Equal(t, 45, f.stock(t))

	cancelled, err := f.service.CancelOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 50, f.stock(t))

	_, err = f.service.CancelOrder(context.Background(), o.ID)
	assert.Equal(t, KindAlreadyCancelled, KindOf(err))
	assert.Equal(t, 50, f.stock(t))
}

func TestCancelRejectsNonConfirmedOrders(t *testing.T) {
	f := newFixture(t, 50, 0)

	_, err := f.service.CancelOrder(context.Background(), "ORD99999")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, cerr := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      1,
		PaymentMethod: "paypal",
	})
	require.Error(t, cerr)
	var ae *Error
	require.ErrorAs(t, cerr, &ae)

	_, err = f.service.CancelOrder(context.Background(), ae.OrderID)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestConcurrentCancelReleasesExactlyOnce(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      5,
		PaymentMethod: "paypal",
	})
	require.NoError(t, err)

	const racers = 12
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.CancelOrder(context.Background(), o.ID); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Equal(t, 1, len(wins))
	assert.Equal(t, 50, f.stock(t))

	stored, gerr := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

// faultyInventory injects failures on selected operations while delegating
// the rest to the real in-memory store.
type faultyInventory struct {
	dominv.Store
	getErr     error
	releaseErr error
}

func (f *faultyInventory) Get(ctx context.Context, productID string) (*dominv.Item, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, productID)
}

func (f *faultyInventory) Release(ctx context.Context, productID, ref string) (int, error) {
	if f.releaseErr != nil {
		return 0, f.releaseErr
	}
	return f.Store.Release(ctx, productID, ref)
}

func TestInventoryOutageIsUnavailable(t *testing.T) {
	f := newFixture(t, 50, 1.0)
	broken := &faultyInventory{Store: f.inventory, getErr: errors.New("connection refused")}
	svc := NewService(f.orders, broken, f.gateway, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "alice",
		ProductID:    "PROD002",
		Quantity:     1,
	})
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.True(t, Retryable(err))
}

func TestFailedReleaseSurfacesCompensationFailure(t *testing.T) {
	f := newFixture(t, 50, 0)
	broken := &faultyInventory{Store: f.inventory, releaseErr: errors.New("connection refused")}
	svc := NewService(f.orders, broken, f.gateway, nil)

	_, err := svc.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      2,
		PaymentMethod: "paypal",
	})
	require.Error(t, err)
	assert.Equal(t, KindCompensationFailed, KindOf(err))

	// The reservation is still held; nothing may silently re-credit it.
	assert.Equal(t, 48, f.stock(t))
}

func TestCancelReleaseFailureReturnsClaim(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      2,
		PaymentMethod: "paypal",
	})
	require.NoError(t, err)

	broken := &faultyInventory{Store: f.inventory, releaseErr: errors.New("connection refused")}
	svc := NewService(f.orders, broken, f.gateway, nil)

	_, cerr := svc.CancelOrder(context.Background(), o.ID)
	require.Error(t, cerr)
	assert.Equal(t, KindCompensationFailed, KindOf(cerr))

	// The claim was returned, so a later cancel can still succeed.
	stored, gerr := f.orders.Get(context.Background(), o.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)

	cancelled, rerr := f.service.CancelOrder(context.Background(), o.ID)
	require.NoError(t, rerr)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 50, f.stock(t))
}

func TestStatsCountRevenueFromConfirmedOnly(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	first, err := f.service.CreateOrderWithPayment(context.Background(), CreateOrderWithPaymentInput{
		CustomerName:  "alice",
		ProductID:     "PROD002",
		Quantity:      2,
		PaymentMethod: "paypal",
	})
	require.NoError(t, err)

	second, err := f.service.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "bob",
		ProductID:    "PROD002",
		Quantity:     1,
	})
	require.NoError(t, err)

	_, err = f.service.CancelOrder(context.Background(), second.ID)
	require.NoError(t, err)

	stats, err := f.service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.ConfirmedOrders)
	assert.Equal(t, 1, stats.CancelledOrders)
	assert.Equal(t, 0, stats.FailedOrders)
	assert.Equal(t, first.TotalPrice, stats.TotalRevenue)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, 50, 1.0)

	o, err := f.service.CreateOrder(context.Background(), CreateOrderInput{
		CustomerName: "alice",
		ProductID:    "PROD002",
		Quantity:     1,
	})
	require.NoError(t, err)

	got, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.service.Get(context.Background(), "ORD99999")
	assert.Equal(t, KindNotFound, KindOf(err))

	orders, err := f.service.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
