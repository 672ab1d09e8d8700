package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func newProduct(t *testing.T, s *MemoryStore, sku string, stock int) Product {
	t.Helper()
	p, err := s.UpsertProduct(context.Background(), Product{
		SKU: sku, Name: "Product " + sku, Price: decimal.NewFromInt(100), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func newOrder(items ...OrderItem) (Order, []OrderItem) {
	o := Order{
		ID:          uuid.NewString(),
		OrderNumber: "GC-" + uuid.NewString()[:8],
		Status:      StatusPendingPayment,
		Currency:    "XAF",
		ExpiresAt:   time.Now().Add(48 * time.Hour),
	}
	return o, items
}

func TestMemoryStore_MovementKinds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := newProduct(t, s, "A", 10)

	got, mv, err := s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementIn, Quantity: 5, Actor: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stock)
	assert.Equal(t, MovementIn, mv.Type)
	assert.Equal(t, "u1", mv.CreatedBy)

	got, _, err = s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementOut, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 11, got.Stock)

	got, mv, err = s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementAdjust, Quantity: 3, Reason: "inventory count"})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
	assert.Equal(t, 3, mv.Quantity)
}

func TestMemoryStore_MovementErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := newProduct(t, s, "A", 2)

	_, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementOut, Quantity: 3})
	var se *StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Available)
	assert.Equal(t, 3, se.Requested)

	_, _, err = s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementIn, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, _, err = s.ApplyMovement(ctx, MovementInput{ProductID: "missing", Type: MovementIn, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: "transfer", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)

	_, total, err := s.ListMovements(ctx, MovementFilter{ProductID: p.ID}, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total, "failed movements must not be recorded")
}

func TestMemoryStore_ConcurrentMoveOut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := newProduct(t, s, "A", 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	for i := 0; i < 40; i++ {
		qty := i%3 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementOut, Quantity: qty})
			if err == nil {
				mu.Lock()
				removed += qty
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}()
	}
	wg.Wait()

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50-removed, got.Stock)
	assert.GreaterOrEqual(t, got.Stock, 0)
}

func TestMemoryStore_ListMovementsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	b := newProduct(t, s, "B", 10)

	for i := 1; i <= 3; i++ {
		_, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: a.ID, Type: MovementIn, Quantity: i})
		require.NoError(t, err)
	}
	_, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: b.ID, Type: MovementOut, Quantity: 1})
	require.NoError(t, err)

	got, total, err := s.ListMovements(ctx, MovementFilter{ProductID: a.ID}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Quantity)
	assert.Equal(t, 2, got[1].Quantity)

	got, total, err = s.ListMovements(ctx, MovementFilter{Type: MovementOut}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, got[0].ProductID)

	got, _, err = s.ListMovements(ctx, MovementFilter{}, 5, 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_CreateOrderAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	b := newProduct(t, s, "B", 1)

	o, items := newOrder(
		OrderItem{ProductID: a.ID, Quantity: 3},
		OrderItem{ProductID: b.ID, Quantity: 2},
	)
	_, err := s.CreateOrder(ctx, o, items, "system")
	var se *StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, b.ID, se.ProductID)

	got, err := s.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock, "first item must not stay reserved")

	_, err = s.GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, total, err := s.ListMovements(ctx, MovementFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStore_CreateOrderReserves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	slot, err := s.UpsertPickupSlot(ctx, PickupSlot{Date: mustDate(t, "2026-03-10"), TimeFrom: "10:00", Active: true})
	require.NoError(t, err)

	o, items := newOrder(OrderItem{ProductID: a.ID, ProductName: a.Name, Quantity: 4})
	o.PickupSlotID = slot.ID
	touched, err := s.CreateOrder(ctx, o, items, "system")
	require.NoError(t, err)
	require.Len(t, touched, 1)
	assert.Equal(t, 6, touched[0].Stock)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, o.ID, got.Items[0].OrderID)
	require.NotNil(t, got.PickupSlot)
	assert.Equal(t, "10:00", got.PickupSlot.TimeFrom)

	mvs, _, err := s.ListMovements(ctx, MovementFilter{ProductID: a.ID}, 1, 20)
	require.NoError(t, err)
	require.Len(t, mvs, 1)
	assert.Equal(t, MovementOut, mvs[0].Type)
	assert.Equal(t, "order "+o.OrderNumber, mvs[0].Reason)
}

func TestMemoryStore_CreateOrderRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)

	o, _ := newOrder()
	_, err := s.CreateOrder(ctx, o, nil, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	o, items := newOrder(OrderItem{ProductID: a.ID, Quantity: 0})
	_, err = s.CreateOrder(ctx, o, items, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	o, items = newOrder(OrderItem{ProductID: a.ID, Quantity: 1}, OrderItem{ProductID: a.ID, Quantity: 1})
	_, err = s.CreateOrder(ctx, o, items, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryStore_TransitionGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	o, items := newOrder(OrderItem{ProductID: a.ID, Quantity: 1})
	_, err := s.CreateOrder(ctx, o, items, "")
	require.NoError(t, err)

	res, err := s.Transition(ctx, TransitionRequest{
		OrderID: o.ID, From: StatusPendingPayment, To: StatusPaid, TempPickupCode: "ABCD1234",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, res.Order.Status)
	assert.Equal(t, "ABCD1234", res.Order.TempPickupCode)
	assert.NotNil(t, res.Order.PaidAt)

	_, err = s.Transition(ctx, TransitionRequest{
		OrderID: o.ID, From: StatusPendingPayment, To: StatusPaid, TempPickupCode: "ZZZZ9999",
	})
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusPaid, te.Actual)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", got.TempPickupCode)

	_, err = s.Transition(ctx, TransitionRequest{OrderID: o.ID, From: StatusPaid, To: StatusCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Transition(ctx, TransitionRequest{OrderID: "nope", From: StatusPaid, To: StatusConfirmed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentTransitionSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	o, items := newOrder(OrderItem{ProductID: a.ID, Quantity: 1})
	_, err := s.CreateOrder(ctx, o, items, "")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, TransitionRequest{OrderID: o.ID, From: StatusPendingPayment, To: StatusPaid})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryStore_CancelRestocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := newProduct(t, s, "A", 10)
	b := newProduct(t, s, "B", 5)

	o, items := newOrder(OrderItem{ProductID: a.ID, Quantity: 3}, OrderItem{ProductID: b.ID, Quantity: 2})
	_, err := s.CreateOrder(ctx, o, items, "")
	require.NoError(t, err)

	res, err := s.Transition(ctx, TransitionRequest{
		OrderID: o.ID, From: StatusPendingPayment, To: StatusCanceled, Restock: true,
	})
	require.NoError(t, err)
	assert.Len(t, res.Restocked, 2)

	gotA, _ := s.GetProduct(ctx, a.ID)
	gotB, _ := s.GetProduct(ctx, b.ID)
	assert.Equal(t, 10, gotA.Stock)
	assert.Equal(t, 5, gotB.Stock)

	mvs, _, err := s.ListMovements(ctx, MovementFilter{Type: MovementIn}, 1, 20)
	require.NoError(t, err)
	require.Len(t, mvs, 2)
	assert.Equal(t, "order canceled", mvs[0].Reason)

	_, err = s.Transition(ctx, TransitionRequest{OrderID: o.ID, From: StatusPaid, To: StatusConfirmed, Restock: true})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryStore_UpsertProductKeepsStock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := newProduct(t, s, "A", 10)

	p.Name = "Renamed"
	p.Stock = 999
	got, err := s.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 10, got.Stock)

	again, err := s.UpsertProduct(ctx, Product{SKU: "A", Name: "By SKU"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	_, err = s.UpsertProduct(ctx, Product{ID: "other", SKU: "A"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	products, slots, err := Seed(ctx, s, mustDate(t, "2026-03-10"), 2)
	require.NoError(t, err)
	assert.Len(t, products, len(DemoProducts))
	assert.Len(t, slots, 4)

	// reseeding is idempotent
	_, _, err = Seed(ctx, s, mustDate(t, "2026-03-10"), 2)
	require.NoError(t, err)

	day, err := s.ListPickupSlots(ctx, "2026-03-11")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "09:00", day[0].TimeFrom)
}
