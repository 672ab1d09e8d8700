package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingPayment, StatusPaid, true},
		{StatusPendingPayment, StatusCanceled, true},
		{StatusPaid, StatusConfirmed, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusPendingPayment, StatusConfirmed, false},
		{StatusPaid, StatusCanceled, false},
		{StatusPaid, StatusPaid, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusPaid, false},
		{"shipped", StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPaid.Terminal())
	assert.False(t, StatusPendingPayment.Terminal())
}

func TestStatus_StaffLabel(t *testing.T) {
	assert.Equal(t, "pending", StatusPendingPayment.StaffLabel())
	assert.Equal(t, "confirmed", StatusPaid.StaffLabel())
	assert.Equal(t, "confirmed", StatusConfirmed.StaffLabel())
	assert.Equal(t, "completed", StatusCompleted.StaffLabel())
}

func TestActor(t *testing.T) {
	a := Actor{ID: "u1", Role: RoleCashier}
	assert.True(t, a.HasRole(RoleCashier, RoleAdmin))
	assert.False(t, a.HasRole(RolePreparer, RoleAdmin))
	assert.Equal(t, "system", Actor{}.String())
}

func TestErrors_Classify(t *testing.T) {
	var err error = &StockError{ProductName: "Lait", Requested: 3, Available: 1}
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Lait")

	err = &TransitionError{OrderID: "o1", From: StatusPaid, To: StatusConfirmed, Actual: StatusConfirmed}
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrInsufficientStock))
}

func TestPickupSlot_StartsAt(t *testing.T) {
	day := mustDate(t, "2026-03-10")

	start, err := PickupSlot{Date: day, TimeFrom: "14:30"}.StartsAt(day.Location())
	assert.NoError(t, err)
	assert.Equal(t, 14, start.Hour())
	assert.Equal(t, 30, start.Minute())

	start, err = PickupSlot{Date: day}.StartsAt(day.Location())
	assert.NoError(t, err)
	assert.Equal(t, 9, start.Hour())

	_, err = PickupSlot{Date: day, TimeFrom: "noon"}.StartsAt(day.Location())
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	p, l := Page(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, 20, l)

	p, l = Page(3, 1000)
	assert.Equal(t, 3, p)
	assert.Equal(t, 200, l)
}
