// Package stock is the only writer of product stock levels.
package stock

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

// DefaultLowThreshold: an alert is raised when stock drops below this level.
const DefaultLowThreshold = 5

// Runner starts fire-and-forget work. notify.Detached implements it.
type Runner interface {
	Go(ctx context.Context, task string, fn func(context.Context) error)
}

type Ledger struct {
	store     orders.Store
	alerter   Alerter
	runner    Runner
	threshold int
	metrics   *metrics.Metrics
}

type Option func(*Ledger)

func WithAlerter(a Alerter, r Runner) Option {
	return func(l *Ledger) { l.alerter, l.runner = a, r }
}

func WithThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func NewLedger(store orders.Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, threshold: DefaultLowThreshold}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) Threshold() int { return l.threshold }

func (l *Ledger) MoveIn(ctx context.Context, productID string, qty int, reason, actor string) (orders.Product, orders.StockMovement, error) {
	return l.apply(ctx, orders.MovementInput{ProductID: productID, Type: orders.MovementIn, Quantity: qty, Reason: reason, Actor: actor})
}

// MoveOut fails with a *orders.StockError when qty exceeds current stock.
// Manual decrements do not raise low-stock alerts; only order reservations
// call CheckLow.
func (l *Ledger) MoveOut(ctx context.Context, productID string, qty int, reason, actor string) (orders.Product, orders.StockMovement, error) {
	return l.apply(ctx, orders.MovementInput{ProductID: productID, Type: orders.MovementOut, Quantity: qty, Reason: reason, Actor: actor})
}

// Adjust sets stock to qty.
func (l *Ledger) Adjust(ctx context.Context, productID string, qty int, reason, actor string) (orders.Product, orders.StockMovement, error) {
	return l.apply(ctx, orders.MovementInput{ProductID: productID, Type: orders.MovementAdjust, Quantity: qty, Reason: reason, Actor: actor})
}

func (l *Ledger) apply(ctx context.Context, in orders.MovementInput) (orders.Product, orders.StockMovement, error) {
	p, mv, err := l.store.ApplyMovement(ctx, in)
	if err != nil {
		return orders.Product{}, orders.StockMovement{}, err
	}
	logging.FromContext(ctx).Info("stock_moved",
		zap.String("product_id", p.ID),
		zap.String("type", string(mv.Type)),
		zap.Int("quantity", mv.Quantity),
		zap.Int("stock", p.Stock),
		zap.String("actor", in.Actor),
		zap.String("activity", "stock."+string(mv.Type)),
	)
	return p, mv, nil
}

type MovementPage struct {
	Movements []orders.StockMovement `json:"movements"`
	Total     int                    `json:"total"`
	Page      int                    `json:"page"`
	Limit     int                    `json:"limit"`
}

// Movements lists the audit trail newest first.
func (l *Ledger) Movements(ctx context.Context, f orders.MovementFilter, page, limit int) (MovementPage, error) {
	page, limit = orders.Page(page, limit)
	mvs, total, err := l.store.ListMovements(ctx, f, page, limit)
	if err != nil {
		return MovementPage{}, err
	}
	return MovementPage{Movements: mvs, Total: total, Page: page, Limit: limit}, nil
}

// CheckLow raises a detached alert for every product whose stock is below
// the threshold. It never blocks on or fails because of the alert.
func (l *Ledger) CheckLow(ctx context.Context, products ...orders.Product) {
	if l.alerter == nil || l.runner == nil {
		return
	}
	for _, p := range products {
		if p.Stock >= l.threshold {
			continue
		}
		p := p
		l.metrics.LowStock()
		logging.FromContext(ctx).Warn("stock_low",
			zap.String("product_id", p.ID),
			zap.String("sku", p.SKU),
			zap.Int("stock", p.Stock),
		)
		l.runner.Go(ctx, "low_stock_alert", func(ctx context.Context) error {
			return l.alerter.LowStock(ctx, p, l.threshold)
		})
	}
}
