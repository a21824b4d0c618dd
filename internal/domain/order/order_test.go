package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesTotal(t *testing.T) {
	o, err := New("ORD00001", "alice", "PROD002", "Mouse", "credit_card", 2, 2999)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(5998), o.TotalPrice)
	assert.Equal(t, o.CreatedAt, o.UpdatedAt)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("ORD00001", "alice", "PROD002", "Mouse", "", 0, 2999)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("ORD00001", "alice", "PROD002", "Mouse", "", 1, -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusValidatingPayment, true},
		{StatusPending, StatusReserving, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusConfirmed, false},
		{StatusValidatingPayment, StatusReserving, true},
		{StatusValidatingPayment, StatusFailed, true},
		{StatusValidatingPayment, StatusCharging, false},
		{StatusReserving, StatusCharging, true},
		{StatusReserving, StatusConfirmed, true},
		{StatusCharging, StatusConfirmed, true},
		{StatusCharging, StatusCompensating, true},
		{StatusCharging, StatusFailed, false},
		{StatusConfirmed, StatusCompensating, true},
		{StatusConfirmed, StatusCancelled, false},
		{StatusCompensating, StatusFailed, true},
		{StatusCompensating, StatusCancelled, true},
		{StatusCompensating, StatusConfirmed, true},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusCompensating, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	assert.True(t, Terminal(StatusFailed))
	assert.True(t, Terminal(StatusCancelled))
	// Confirmed ends the saga but is still claimable by a cancel.
	assert.False(t, Terminal(StatusConfirmed))
	assert.True(t, CanTransition(StatusConfirmed, StatusCompensating))

	o := &Order{Status: StatusFailed}
	for _, to := range []Status{StatusPending, StatusReserving, StatusConfirmed, StatusCancelled} {
		assert.ErrorIs(t, o.Advance(to), ErrInvalidTransition)
	}
	assert.Equal(t, StatusFailed, o.Status)
}

func TestConfirmPaidRecordsGatewayIdentifiers(t *testing.T) {
	o, err := New("ORD00001", "alice", "PROD001", "Laptop", "paypal", 1, 99999)
	require.NoError(t, err)

	require.NoError(t, o.Advance(StatusValidatingPayment))
	require.NoError(t, o.Advance(StatusReserving))
	require.NoError(t, o.Advance(StatusCharging))
	require.NoError(t, o.ConfirmPaid("PAY00001", "TXN-1"))

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, "PAY00001", o.PaymentID)
	assert.Equal(t, "TXN-1", o.TransactionID)
	require.NotNil(t, o.PaidAt)
}

func TestFailKeepsReason(t *testing.T) {
	o, err := New("ORD00001", "alice", "PROD001", "Laptop", "", 1, 99999)
	require.NoError(t, err)

	require.NoError(t, o.Fail("not enough stock"))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, "not enough stock", o.FailureReason)
}

func TestCancelOnlyFromCompensating(t *testing.T) {
	o, err := New("ORD00001", "alice", "PROD001", "Laptop", "", 1, 99999)
	require.NoError(t, err)
	require.NoError(t, o.Advance(StatusReserving))
	require.NoError(t, o.Confirm())

	assert.ErrorIs(t, o.Cancel(), ErrInvalidTransition)

	require.NoError(t, o.Advance(StatusCompensating))
	require.NoError(t, o.Cancel())
	assert.Equal(t, StatusCancelled, o.Status)
	require.NotNil(t, o.CancelledAt)
}

func TestCloneDoesNotAlias(t *testing.T) {
	o, err := New("ORD00001", "alice", "PROD001", "Laptop", "paypal", 1, 99999)
	require.NoError(t, err)
	require.NoError(t, o.Advance(StatusValidatingPayment))
	require.NoError(t, o.Advance(StatusReserving))
	require.NoError(t, o.Advance(StatusCharging))
	require.NoError(t, o.ConfirmPaid("PAY00001", "TXN-1"))

	clone := o.Clone()
	clone.Status = StatusFailed
	*clone.PaidAt = clone.PaidAt.AddDate(1, 0, 0)

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.NotEqual(t, *o.PaidAt, *clone.PaidAt)
}
