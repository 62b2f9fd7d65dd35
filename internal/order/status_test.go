package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusCompleted, true},
		{StatusPending, StatusShipped, false},
		{StatusShipped, StatusPending, false},
		{StatusDelivered, StatusPending, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusRefunded, true},
		{StatusShipped, StatusReturned, true},
		{StatusDelivered, StatusRefunded, false},
		{StatusCompleted, StatusRefunded, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRefunded, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionAppendsHistory(t *testing.T) {
	o := &Order{Status: StatusPending}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, o.Transition(StatusConfirmed, "webhook:PAYSTACK", "payment confirmed", at))
	require.NoError(t, o.Transition(StatusCancelled, "merchant", "", at.Add(time.Minute)))

	assert.Equal(t, StatusCancelled, o.Status)
	require.Len(t, o.StatusHistory, 2)
	assert.Equal(t, StatusChange{From: StatusPending, To: StatusConfirmed, Actor: "webhook:PAYSTACK", Reason: "payment confirmed", At: at}, o.StatusHistory[0])
	assert.Equal(t, StatusConfirmed, o.StatusHistory[1].From)
}

func TestTransitionRejectsBackwardMove(t *testing.T) {
	o := &Order{Status: StatusShipped}

	err := o.Transition(StatusPending, "system", "", time.Now())

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusShipped, o.Status)
	assert.Empty(t, o.StatusHistory)
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusReturned, StatusRefunded} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusDelivered.IsTerminal())
}

func TestCheckAmounts(t *testing.T) {
	ok := Order{Subtotal: 4000, ShippingFee: 1000, Tax: 300, Discount: 300, Total: 5000}
	assert.NoError(t, ok.CheckAmounts())

	wrongTotal := ok
	wrongTotal.Total = 4999
	assert.ErrorIs(t, wrongTotal.CheckAmounts(), ErrInvalidAmounts)

	negative := Order{Subtotal: 100, Discount: -10, Total: 110}
	assert.ErrorIs(t, negative.CheckAmounts(), ErrInvalidAmounts)
}
