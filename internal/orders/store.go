package orders

import (
	"context"
	"fmt"
	"time"
)

// Store is the persistence port of the fulfillment core. Every method that
// writes more than one row does so atomically.
type Store interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	UpsertProduct(ctx context.Context, p Product) (Product, error)

	GetPickupSlot(ctx context.Context, id string) (PickupSlot, error)
	UpsertPickupSlot(ctx context.Context, s PickupSlot) (PickupSlot, error)
	ListPickupSlots(ctx context.Context, date string) ([]PickupSlot, error)

	// ApplyMovement updates the product stock and appends the movement in one
	// unit. Out movements never take stock below zero.
	ApplyMovement(ctx context.Context, in MovementInput) (Product, StockMovement, error)
	ListMovements(ctx context.Context, f MovementFilter, page, limit int) ([]StockMovement, int, error)

	// CreateOrder reserves stock for every item, persists the order with its
	// item snapshots and appends one out movement per item. Either all of it
	// happens or none of it does. The returned products carry post-reservation
	// stock.
	CreateOrder(ctx context.Context, o Order, items []OrderItem, actor string) ([]Product, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter, page, limit int) ([]Order, int, error)
	SetPaymentProvider(ctx context.Context, orderID, provider string) error

	// Transition moves an order from From to To only if its current status is
	// From. A failed guard returns a *TransitionError and changes nothing.
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)
}

type TransitionRequest struct {
	OrderID         string
	From            Status
	To              Status
	TempPickupCode  string
	FinalPickupCode string
	// Restock returns every item's quantity to stock with in movements.
	Restock bool
	Reason  string
	Actor   string
	At      time.Time
}

type TransitionResult struct {
	Order     Order
	Restocked []Product
}

func (r TransitionRequest) validate() error {
	if r.OrderID == "" {
		return invalidInput("order id is required")
	}
	if !CanTransition(r.From, r.To) {
		return fmt.Errorf("%w: %s -> %s is not allowed", ErrInvalidTransition, r.From, r.To)
	}
	if r.Restock && r.To != StatusCanceled {
		return invalidInput("restock is only allowed on cancellation")
	}
	return nil
}

func (r TransitionRequest) apply(o *Order) {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	o.Status = r.To
	o.UpdatedAt = at
	if r.TempPickupCode != "" {
		o.TempPickupCode = r.TempPickupCode
	}
	if r.FinalPickupCode != "" {
		o.FinalPickupCode = r.FinalPickupCode
	}
	switch r.To {
	case StatusPaid:
		o.PaidAt = &at
	case StatusConfirmed:
		o.CodeValidatedAt = &at
	case StatusCompleted:
		o.PickedUpAt = &at
	}
}

func validateMovement(in MovementInput) error {
	if in.ProductID == "" {
		return invalidInput("product id is required")
	}
	if !in.Type.Valid() {
		return invalidInput("unknown movement type %q", in.Type)
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

func validateNewOrder(o Order, items []OrderItem) error {
	if o.ID == "" || o.OrderNumber == "" {
		return invalidInput("order id and number are required")
	}
	if o.Status != StatusPendingPayment {
		return invalidInput("new orders start in %s", StatusPendingPayment)
	}
	if len(items) == 0 {
		return invalidInput("order has no items")
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if seen[it.ProductID] {
			return invalidInput("product %s listed twice", it.ProductID)
		}
		seen[it.ProductID] = true
	}
	return nil
}
