package fulfillment

import (
	"context"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/stock"
)

var stockRoles = []orders.Role{orders.RoleAdmin, orders.RolePreparer}

func (s *Service) StockIn(ctx context.Context, actor orders.Actor, productID string, qty int, reason string) (orders.Product, orders.StockMovement, error) {
	if err := authorize(actor, stockRoles...); err != nil {
		return orders.Product{}, orders.StockMovement{}, err
	}
	return s.ledger.MoveIn(ctx, productID, qty, reason, actor.String())
}

func (s *Service) StockOut(ctx context.Context, actor orders.Actor, productID string, qty int, reason string) (orders.Product, orders.StockMovement, error) {
	if err := authorize(actor, stockRoles...); err != nil {
		return orders.Product{}, orders.StockMovement{}, err
	}
	return s.ledger.MoveOut(ctx, productID, qty, reason, actor.String())
}

// StockAdjust sets the absolute stock level after a physical count.
func (s *Service) StockAdjust(ctx context.Context, actor orders.Actor, productID string, qty int, reason string) (orders.Product, orders.StockMovement, error) {
	if err := authorize(actor, stockRoles...); err != nil {
		return orders.Product{}, orders.StockMovement{}, err
	}
	return s.ledger.Adjust(ctx, productID, qty, reason, actor.String())
}

func (s *Service) ListStockMovements(ctx context.Context, actor orders.Actor, f orders.MovementFilter, page, limit int) (stock.MovementPage, error) {
	if err := authorize(actor, stockRoles...); err != nil {
		return stock.MovementPage{}, err
	}
	if f.Type != "" && !f.Type.Valid() {
		return stock.MovementPage{}, invalid("unknown movement type %q", f.Type)
	}
	return s.ledger.Movements(ctx, f, page, limit)
}

// StaffOrders is the order board of the pickup counter.
func (s *Service) StaffOrders(ctx context.Context, actor orders.Actor, f orders.OrderFilter, page, limit int) (OrderPage, error) {
	if err := authorize(actor, orders.RoleAdmin, orders.RoleCashier, orders.RolePreparer); err != nil {
		return OrderPage{}, err
	}
	return s.ListOrders(ctx, f, page, limit)
}
