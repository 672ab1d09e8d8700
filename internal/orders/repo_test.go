package orders

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/postgres"
)

// pgStore connects to POSTGRES_TEST_DSN. Each test works on fresh uuids so
// runs do not interfere.
func pgStore(t *testing.T) *PGStore {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return &PGStore{DB: pool}
}

func pgProduct(t *testing.T, s *PGStore, stock int) Product {
	t.Helper()
	p, err := s.UpsertProduct(context.Background(), Product{
		SKU: "T-" + uuid.NewString()[:12], Name: "Test product", Price: decimal.RequireFromString("1250.50"), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func TestPGStore_MovementsAndPrices(t *testing.T) {
	s := pgStore(t)
	ctx := context.Background()
	p := pgProduct(t, s, 3)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(p.Price))

	_, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementOut, Quantity: 4})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, _, err := s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementIn, Quantity: 2, Actor: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	got, _, err = s.ApplyMovement(ctx, MovementInput{ProductID: p.ID, Type: MovementAdjust, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	mvs, total, err := s.ListMovements(ctx, MovementFilter{ProductID: p.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, MovementAdjust, mvs[0].Type)

	again, err := s.UpsertProduct(ctx, Product{SKU: p.SKU, Name: "Renamed", Price: p.Price, Stock: 99})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, 1, again.Stock)
}

func TestPGStore_OrderLifecycle(t *testing.T) {
	s := pgStore(t)
	ctx := context.Background()
	a := pgProduct(t, s, 5)
	b := pgProduct(t, s, 1)

	o, items := newOrder(
		OrderItem{ProductID: a.ID, ProductName: a.Name, ProductPrice: a.Price, Quantity: 2, Subtotal: a.Price.Mul(decimal.NewFromInt(2))},
		OrderItem{ProductID: b.ID, ProductName: b.Name, ProductPrice: b.Price, Quantity: 2, Subtotal: b.Price.Mul(decimal.NewFromInt(2))},
	)
	_, err := s.CreateOrder(ctx, o, items, "test")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	_, err = s.GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	pa, err := s.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, pa.Stock)

	items[1].Quantity, items[1].Subtotal = 1, b.Price
	o.Amount = items[0].Subtotal.Add(items[1].Subtotal)
	touched, err := s.CreateOrder(ctx, o, items, "test")
	require.NoError(t, err)
	assert.Len(t, touched, 2)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.True(t, o.Amount.Equal(got.Amount))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, TransitionRequest{
				OrderID: o.ID, From: StatusPendingPayment, To: StatusCanceled, Restock: true, At: time.Now(),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	pa, err = s.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, pa.Stock)
	pb, err := s.GetProduct(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pb.Stock)
}

func TestProductIDs_SortedAndDistinct(t *testing.T) {
	got := productIDs([]OrderItem{{ProductID: "c"}, {ProductID: "a"}, {ProductID: "c"}, {ProductID: "b"}})
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Empty(t, productIDs(nil))
}

// Item names sort opposite to product ids, so restocking in item order and
// reserving in id order would lock the two rows in reverse.
func TestPGStore_CancelAndCreateShareLockOrder(t *testing.T) {
	s := pgStore(t)
	ctx := context.Background()

	ids := []string{uuid.NewString(), uuid.NewString()}
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	var products []Product
	for i, name := range []string{"Zebu", "Arachide"} {
		p, err := s.UpsertProduct(ctx, Product{
			ID: ids[i], SKU: "T-" + uuid.NewString()[:12], Name: name, Price: decimal.NewFromInt(100), Stock: 1000,
		})
		require.NoError(t, err)
		products = append(products, p)
	}
	items := func() []OrderItem {
		out := make([]OrderItem, 0, len(products))
		for _, p := range products {
			out = append(out, OrderItem{ProductID: p.ID, ProductName: p.Name, ProductPrice: p.Price, Quantity: 1, Subtotal: p.Price})
		}
		return out
	}

	const rounds = 20
	pending := make([]Order, 0, rounds)
	for i := 0; i < rounds; i++ {
		o, its := newOrder(items()...)
		_, err := s.CreateOrder(ctx, o, its, "test")
		require.NoError(t, err)
		pending = append(pending, o)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(o Order) {
			defer wg.Done()
			_, err := s.Transition(ctx, TransitionRequest{
				OrderID: o.ID, From: StatusPendingPayment, To: StatusCanceled, Restock: true, At: time.Now(),
			})
			errs <- err
		}(pending[i])
		go func() {
			defer wg.Done()
			o, its := newOrder(items()...)
			_, err := s.CreateOrder(ctx, o, its, "test")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for _, p := range products {
		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1000-rounds, got.Stock)
	}
}
