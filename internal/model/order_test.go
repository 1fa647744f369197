package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderPaid, true},
		{OrderPending, OrderExpired, true},
		{OrderPending, OrderCancelled, true},
		{OrderPending, OrderPending, false},
		{OrderPaid, OrderExpired, false},
		{OrderPaid, OrderPending, false},
		{OrderExpired, OrderPaid, false},
		{OrderCancelled, OrderPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusChange_Apply(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	amount := int64(10000)

	o := &Order{Status: OrderPending}
	StatusChange{To: OrderPaid, At: at, PaidAmount: &amount}.Apply(o)
	assert.Equal(t, OrderPaid, o.Status)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, at, *o.PaidAt)
	require.NotNil(t, o.PaidAmount)
	assert.Equal(t, amount, *o.PaidAmount)

	amount = 1
	assert.Equal(t, int64(10000), *o.PaidAmount)

	e := &Order{Status: OrderPending}
	StatusChange{To: OrderExpired, At: at}.Apply(e)
	assert.Equal(t, OrderExpired, e.Status)
	assert.Nil(t, e.PaidAt)
	assert.Equal(t, at, e.UpdatedAt)
}

func TestDateRange_Contains(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: &from, To: &to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.False(t, r.Contains(from.Add(-time.Second)))
	assert.False(t, r.Contains(to.Add(time.Second)))
	assert.True(t, DateRange{}.Contains(time.Time{}))
}
