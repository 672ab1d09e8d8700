package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

const (
	PerishableWindow     = 24 * time.Hour
	NonPerishableWindow  = 48 * time.Hour
	DefaultPaymentMethod = "momo"
)

type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	UserID        string      `json:"-"`
	CustomerName  string      `json:"customerName"`
	CustomerPhone string      `json:"customerPhone"`
	CustomerEmail string      `json:"customerEmail"`
	PickupSlotID  string      `json:"pickupSlotId"`
	Items         []ItemInput `json:"items"`
	PaymentMethod string      `json:"paymentMethod"`
	Notes         string      `json:"notes"`
}

func (in CreateOrderInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.CustomerName) == "" {
		missing = append(missing, "customerName")
	}
	if strings.TrimSpace(in.CustomerPhone) == "" {
		missing = append(missing, "customerPhone")
	}
	if in.PickupSlotID == "" {
		missing = append(missing, "pickupSlotId")
	}
	if len(in.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return invalid("missing required fields: %s", strings.Join(missing, ", "))
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return invalid("item without productId")
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("product %s: %w", it.ProductID, orders.ErrInvalidQuantity)
		}
	}
	return nil
}

// ExpiryWindow is how long an order may wait for pickup.
func ExpiryWindow(perishable bool) time.Duration {
	if perishable {
		return PerishableWindow
	}
	return NonPerishableWindow
}

// CreateOrder prices the cart from current products, checks the pickup slot
// against the expiry window and reserves stock for every item in one store
// transaction. Nothing is persisted when any item is short.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (orders.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.CreateOrder")
	defer span.End()
	log := logging.FromContext(ctx)

	if err := in.validate(); err != nil {
		return orders.Order{}, err
	}

	merged := mergeItems(in.Items)
	items := make([]orders.OrderItem, 0, len(merged))
	amount := decimal.Zero
	perishable := false
	for _, it := range merged {
		p, err := s.store.GetProduct(ctx, it.ProductID)
		if err != nil {
			return orders.Order{}, err
		}
		if it.Quantity > p.Stock {
			return orders.Order{}, &orders.StockError{ProductID: p.ID, ProductName: p.Name, Requested: it.Quantity, Available: p.Stock}
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		amount = amount.Add(subtotal)
		perishable = perishable || p.Perishable
		items = append(items, orders.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductPrice: p.Price,
			Quantity:     it.Quantity,
			Subtotal:     subtotal,
		})
	}

	now := s.now()
	window := ExpiryWindow(perishable)
	expiresAt := now.Add(window)

	slot, err := s.store.GetPickupSlot(ctx, in.PickupSlotID)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Order{}, invalid("pickup slot %s does not exist", in.PickupSlotID)
	}
	if err != nil {
		return orders.Order{}, err
	}
	start, err := slot.StartsAt(s.cfg.Location)
	if err != nil {
		return orders.Order{}, invalid("%v", err)
	}
	if start.After(expiresAt) {
		return orders.Order{}, fmt.Errorf("%w: slot starts %s, order expires %s",
			orders.ErrInvalidPickupWindow, start.Format(time.RFC3339), expiresAt.In(s.cfg.Location).Format(time.RFC3339))
	}

	number, err := newOrderNumber(now)
	if err != nil {
		return orders.Order{}, err
	}
	method := in.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}
	o := orders.Order{
		ID:            uuid.NewString(),
		OrderNumber:   number,
		UserID:        in.UserID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		PickupSlotID:  slot.ID,
		Amount:        amount,
		Currency:      s.cfg.Currency,
		PaymentMethod: method,
		Notes:         in.Notes,
		Status:        orders.StatusPendingPayment,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int("order.items", len(items)))

	actor := "customer"
	if in.UserID != "" {
		actor = "customer:" + in.UserID
	}
	touched, err := s.store.CreateOrder(ctx, o, items, actor)
	if err != nil {
		return orders.Order{}, err
	}
	s.metrics.OrderCreated()
	log.Info("order_created",
		zap.String("activity", "order.created"),
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("perishable", perishable),
		zap.Time("expires_at", expiresAt),
	)
	s.ledger.CheckLow(ctx, touched...)

	created, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return orders.Order{}, err
	}
	s.cacheStatus(ctx, created)

	qtys := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		qtys = append(qtys, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	s.publish(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Items:       qtys,
		Amount:      amount.StringFixed(2),
		Currency:    o.Currency,
		ExpiresAt:   expiresAt,
	})
	return created, nil
}

// mergeItems folds repeated products into one line, keeping first-seen order.
func mergeItems(in []ItemInput) []ItemInput {
	idx := make(map[string]int, len(in))
	out := make([]ItemInput, 0, len(in))
	for _, it := range in {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func (s *Service) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	if id == "" {
		return orders.Order{}, invalid("order id is required")
	}
	return s.store.GetOrder(ctx, id)
}

type OrderPage struct {
	Orders []orders.Order
	Total  int
	Page   int
	Limit  int
}

func (s *Service) ListOrders(ctx context.Context, f orders.OrderFilter, page, limit int) (OrderPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return OrderPage{}, invalid("unknown status %q", f.Status)
	}
	page, limit = orders.Page(page, limit)
	list, total, err := s.store.ListOrders(ctx, f, page, limit)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Orders: list, Total: total, Page: page, Limit: limit}, nil
}

type StatusView struct {
	OrderID   string        `json:"orderId"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Cached    bool          `json:"cached"`
}

// GetOrderStatus reads through the status cache.
func (s *Service) GetOrderStatus(ctx context.Context, id string) (StatusView, error) {
	if s.cache != nil {
		cs, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			logging.FromContext(ctx).Warn("status_cache_get_failed", zap.String("order_id", id), zap.Error(err))
		}
		if ok {
			return StatusView{OrderID: id, Status: orders.Status(cs.Status), UpdatedAt: cs.UpdatedAt, Cached: true}, nil
		}
	}
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	s.fillStatus(ctx, o)
	return StatusView{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt}, nil
}

func (s *Service) ListPickupSlots(ctx context.Context, date string) ([]orders.PickupSlot, error) {
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return nil, invalid("date must be YYYY-MM-DD")
		}
	}
	return s.store.ListPickupSlots(ctx, date)
}

type Policy struct {
	ExpirationPolicy    string `json:"expirationPolicy"`
	PerishableExpiry    int    `json:"perishableExpiry"`
	NonPerishableExpiry int    `json:"nonPerishableExpiry"`
}

func (s *Service) Policy() Policy {
	return Policy{
		ExpirationPolicy:    "24h périssables, 48h non périssables. Passé ce délai, commande annulée.",
		PerishableExpiry:    int(PerishableWindow.Hours()),
		NonPerishableExpiry: int(NonPerishableWindow.Hours()),
	}
}
