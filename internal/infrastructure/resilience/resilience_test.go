package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "orderflow/internal/domain/inventory"
	dompay "orderflow/internal/domain/payment"
)

func testPolicy(name string) Policy {
	return Policy{
		MaxRetries:       3,
		InitialInterval:  time.Millisecond,
		MaxInterval:      2 * time.Millisecond,
		BreakerName: name,
		// Above MaxRetries+1 so retry tests spend the whole budget
		// before the breaker can open.
		FailureThreshold: 10,
		OpenTimeout:      time.Minute,
		CallTimeout:      time.Second,
	}
}

// flakyStore fails a configurable number of Get calls before recovering.
type flakyStore struct {
	dominv.Store
	failures int
	calls    int
	err      error
}

func (s *flakyStore) Get(ctx context.Context, productID string) (*dominv.Item, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.err
	}
	return &dominv.Item{ProductID: productID, Stock: 7}, nil
}

func TestRetriesInfrastructureFailures(t *testing.T) {
	store := &flakyStore{failures: 2, err: errors.New("connection reset")}
	wrapped := WrapInventory(store, testPolicy("inventory"), nil)

	item, err := wrapped.Get(context.Background(), "PROD001")
	require.NoError(t, err)
	assert.Equal(t, 7, item.Stock)
	assert.Equal(t, 3, store.calls)
}

func TestDomainAnswersAreNotRetried(t *testing.T) {
	store := &flakyStore{failures: 10, err: dominv.ErrInsufficientStock}
	wrapped := WrapInventory(store, testPolicy("inventory"), nil)

	_, err := wrapped.Get(context.Background(), "PROD001")
	assert.ErrorIs(t, err, dominv.ErrInsufficientStock)
	assert.Equal(t, 1, store.calls)
}

func TestRetryBudgetExhausted(t *testing.T) {
	store := &flakyStore{failures: 100, err: errors.New("connection reset")}
	wrapped := WrapInventory(store, testPolicy("inventory"), nil)

	_, err := wrapped.Get(context.Background(), "PROD001")
	require.Error(t, err)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 4, store.calls)
}

func TestBreakerCutsRetriesShort(t *testing.T) {
	store := &flakyStore{failures: 100, err: errors.New("connection reset")}
	policy := testPolicy("inventory")
	policy.MaxRetries = 5
	policy.FailureThreshold = 3
	wrapped := WrapInventory(store, policy, nil)

	_, err := wrapped.Get(context.Background(), "PROD001")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	// The breaker opens after the third consecutive failure, so the
	// remaining retry budget is never spent against the store.
	assert.Equal(t, 3, store.calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &flakyStore{failures: 1000, err: errors.New("connection reset")}
	policy := testPolicy("inventory")
	policy.MaxRetries = 0
	policy.FailureThreshold = 3
	wrapped := WrapInventory(store, policy, nil)

	for i := 0; i < 3; i++ {
		_, err := wrapped.Get(context.Background(), "PROD001")
		require.Error(t, err)
	}

	before := store.calls
	_, err := wrapped.Get(context.Background(), "PROD001")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, store.calls)
}

func TestBreakerIgnoresDomainAnswers(t *testing.T) {
	store := &flakyStore{failures: 1000, err: dominv.ErrNotFound}
	policy := testPolicy("inventory")
	policy.MaxRetries = 0
	wrapped := WrapInventory(store, policy, nil)

	for i := 0; i < 10; i++ {
		_, err := wrapped.Get(context.Background(), "PROD001")
		assert.ErrorIs(t, err, dominv.ErrNotFound)
	}
	assert.Equal(t, 10, store.calls)
}

// countingGateway records Charge attempts and always fails.
type countingGateway struct {
	dompay.Gateway
	charges int
	err     error
}

func (g *countingGateway) Charge(ctx context.Context, orderID, customer string, amount int64, method string) (*dompay.Payment, error) {
	g.charges++
	return nil, g.err
}

func (g *countingGateway) Validate(ctx context.Context, method string, amount int64) error {
	return nil
}

func TestChargeIsNeverRetried(t *testing.T) {
	gw := &countingGateway{err: errors.New("connection reset")}
	wrapped := WrapPayment(gw, testPolicy("payment"), nil)

	_, err := wrapped.Charge(context.Background(), "ORD00001", "alice", 5998, "paypal")
	require.Error(t, err)
	assert.Equal(t, 1, gw.charges)
}

func TestDeclinedChargePassesThrough(t *testing.T) {
	gw := &countingGateway{err: dompay.ErrDeclined}
	wrapped := WrapPayment(gw, testPolicy("payment"), nil)

	for i := 0; i < 10; i++ {
		_, err := wrapped.Charge(context.Background(), "ORD00001", "alice", 5998, "paypal")
		assert.ErrorIs(t, err, dompay.ErrDeclined)
	}
	// Declines never trip the breaker.
	assert.Equal(t, 10, gw.charges)
}
