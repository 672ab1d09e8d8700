package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory behind one lock, which makes
// each method trivially atomic. Values are copied in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]*Product
	skus      map[string]string
	slots     map[string]*PickupSlot
	movements []StockMovement
	orders    map[string]*Order
	items     map[string][]OrderItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*Product),
		skus:     make(map[string]string),
		slots:    make(map[string]*PickupSlot),
		orders:   make(map[string]*Order),
		items:    make(map[string][]OrderItem),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) GetProduct(_ context.Context, id string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return *p, nil
}

// UpsertProduct creates a product or updates its catalog fields. Stock of an
// existing product is left untouched; it only moves through ApplyMovement.
func (m *MemoryStore) UpsertProduct(_ context.Context, p Product) (Product, error) {
	if p.SKU == "" {
		return Product{}, invalidInput("sku is required")
	}
	if p.Stock < 0 {
		return Product{}, invalidInput("stock cannot be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if owner, ok := m.skus[p.SKU]; ok && owner != p.ID {
		if p.ID != "" {
			return Product{}, invalidInput("sku %s already used", p.SKU)
		}
		p.ID = owner
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if existing, ok := m.products[p.ID]; ok {
		if existing.SKU != p.SKU {
			delete(m.skus, existing.SKU)
		}
		p.Stock = existing.Stock
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	stored := p
	m.products[p.ID] = &stored
	m.skus[p.SKU] = p.ID
	return p, nil
}

func (m *MemoryStore) GetPickupSlot(_ context.Context, id string) (PickupSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return PickupSlot{}, fmt.Errorf("pickup slot %s: %w", id, ErrNotFound)
	}
	return *s, nil
}

func (m *MemoryStore) UpsertPickupSlot(_ context.Context, s PickupSlot) (PickupSlot, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := s
	m.slots[s.ID] = &stored
	return s, nil
}

func (m *MemoryStore) ListPickupSlots(_ context.Context, date string) ([]PickupSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PickupSlot, 0, len(m.slots))
	for _, s := range m.slots {
		if !s.Active {
			continue
		}
		if date != "" && s.Date.Format(time.DateOnly) != date {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeFrom < out[j].TimeFrom
	})
	return out, nil
}

func (m *MemoryStore) ApplyMovement(_ context.Context, in MovementInput) (Product, StockMovement, error) {
	if err := validateMovement(in); err != nil {
		return Product{}, StockMovement{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[in.ProductID]
	if !ok {
		return Product{}, StockMovement{}, fmt.Errorf("product %s: %w", in.ProductID, ErrNotFound)
	}

	next := p.Stock
	switch in.Type {
	case MovementIn:
		next += in.Quantity
	case MovementOut:
		if in.Quantity > p.Stock {
			return Product{}, StockMovement{}, &StockError{
				ProductID: p.ID, ProductName: p.Name, Requested: in.Quantity, Available: p.Stock,
			}
		}
		next -= in.Quantity
	case MovementAdjust:
		next = in.Quantity
	}

	now := time.Now().UTC()
	p.Stock = next
	p.UpdatedAt = now
	mv := m.appendMovement(in.ProductID, in.Type, in.Quantity, in.Reason, in.Actor, now)
	return *p, mv, nil
}

func (m *MemoryStore) appendMovement(productID string, t MovementType, qty int, reason, actor string, at time.Time) StockMovement {
	mv := StockMovement{
		ID:        uuid.NewString(),
		ProductID: productID,
		Type:      t,
		Quantity:  qty,
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: at,
	}
	m.movements = append(m.movements, mv)
	return mv
}

func (m *MemoryStore) ListMovements(_ context.Context, f MovementFilter, page, limit int) ([]StockMovement, int, error) {
	page, limit = Page(page, limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []StockMovement
	for i := len(m.movements) - 1; i >= 0; i-- {
		mv := m.movements[i]
		if f.ProductID != "" && mv.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && mv.Type != f.Type {
			continue
		}
		matched = append(matched, mv)
	}
	return paginate(matched, page, limit), len(matched), nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o Order, items []OrderItem, actor string) ([]Product, error) {
	if err := validateNewOrder(o, items); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.ID]; exists {
		return nil, invalidInput("order %s already exists", o.ID)
	}

	// check everything before touching anything
	for _, it := range items {
		p, ok := m.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
		}
		if it.Quantity > p.Stock {
			return nil, &StockError{ProductID: p.ID, ProductName: p.Name, Requested: it.Quantity, Available: p.Stock}
		}
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	o.Items, o.PickupSlot = nil, nil

	stored := make([]OrderItem, 0, len(items))
	touched := make([]Product, 0, len(items))
	reason := "order " + o.OrderNumber
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		stored = append(stored, it)

		p := m.products[it.ProductID]
		p.Stock -= it.Quantity
		p.UpdatedAt = now
		m.appendMovement(p.ID, MovementOut, it.Quantity, reason, actor, now)
		touched = append(touched, *p)
	}

	m.orders[o.ID] = &o
	m.items[o.ID] = stored
	return touched, nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	out := *o
	out.Items = append([]OrderItem(nil), m.items[id]...)
	if s, ok := m.slots[o.PickupSlotID]; ok {
		slot := *s
		out.PickupSlot = &slot
	}
	return out, nil
}

func (m *MemoryStore) ListOrders(_ context.Context, f OrderFilter, page, limit int) ([]Order, int, error) {
	page, limit = Page(page, limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out := *o
		out.Items = append([]OrderItem(nil), m.items[o.ID]...)
		matched = append(matched, out)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page, limit), len(matched), nil
}

func (m *MemoryStore) SetPaymentProvider(_ context.Context, orderID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	o.PaymentProvider = provider
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Transition(_ context.Context, req TransitionRequest) (TransitionResult, error) {
	if err := req.validate(); err != nil {
		return TransitionResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[req.OrderID]
	if !ok {
		return TransitionResult{}, fmt.Errorf("order %s: %w", req.OrderID, ErrNotFound)
	}
	if o.Status != req.From {
		return TransitionResult{}, &TransitionError{OrderID: o.ID, From: req.From, To: req.To, Actual: o.Status}
	}

	var restocked []Product
	if req.Restock {
		now := time.Now().UTC()
		reason := req.Reason
		if reason == "" {
			reason = "order canceled"
		}
		for _, it := range m.items[o.ID] {
			p, ok := m.products[it.ProductID]
			if !ok {
				// a product row vanished under a live order; the cancellation
				// still has to go through
				continue
			}
			p.Stock += it.Quantity
			p.UpdatedAt = now
			m.appendMovement(p.ID, MovementIn, it.Quantity, reason, req.Actor, now)
			restocked = append(restocked, *p)
		}
	}

	req.apply(o)
	out := *o
	out.Items = append([]OrderItem(nil), m.items[o.ID]...)
	return TransitionResult{Order: out, Restocked: restocked}, nil
}

func paginate[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
