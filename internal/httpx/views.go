package httpx

import (
	"time"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

type itemView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

type slotView struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	TimeFrom  string `json:"timeFrom"`
	TimeTo    string `json:"timeTo"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
}

func slotOf(s orders.PickupSlot) slotView {
	return slotView{
		ID:        s.ID,
		Date:      s.Date.Format(time.DateOnly),
		TimeFrom:  s.TimeFrom,
		TimeTo:    s.TimeTo,
		Capacity:  s.Capacity,
		Remaining: s.Remaining,
	}
}

// orderView never carries pickup codes; they only travel through the
// customer notifications and the validation response.
type orderView struct {
	ID              string     `json:"id"`
	OrderNumber     string     `json:"orderNumber"`
	Status          string     `json:"status"`
	CustomerName    string     `json:"customerName"`
	CustomerPhone   string     `json:"customerPhone,omitempty"`
	CustomerEmail   string     `json:"customerEmail,omitempty"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	PaymentMethod   string     `json:"paymentMethod"`
	PaymentProvider string     `json:"paymentProvider,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	CodeValidatedAt *time.Time `json:"codeValidatedAt,omitempty"`
	PickedUpAt      *time.Time `json:"pickedUpAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Items           []itemView `json:"items"`
	PickupSlot      *slotView  `json:"pickupSlot,omitempty"`
}

func orderOf(o orders.Order) orderView {
	v := orderView{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerEmail:   o.CustomerEmail,
		Amount:          o.Amount.StringFixed(2),
		Currency:        o.Currency,
		PaymentMethod:   o.PaymentMethod,
		PaymentProvider: o.PaymentProvider,
		Notes:           o.Notes,
		ExpiresAt:       o.ExpiresAt,
		PaidAt:          o.PaidAt,
		CodeValidatedAt: o.CodeValidatedAt,
		PickedUpAt:      o.PickedUpAt,
		CreatedAt:       o.CreatedAt,
		Items:           make([]itemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, itemView{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       it.ProductPrice.StringFixed(2),
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal.StringFixed(2),
		})
	}
	if o.PickupSlot != nil {
		s := slotOf(*o.PickupSlot)
		v.PickupSlot = &s
	}
	return v
}

// staffOrderOf uses the counter's simplified status vocabulary.
func staffOrderOf(o orders.Order) orderView {
	v := orderOf(o)
	v.Status = o.Status.StaffLabel()
	return v
}

type orderPageView struct {
	Orders []orderView `json:"orders"`
	Total  int         `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

func pageOf(p fulfillment.OrderPage, view func(orders.Order) orderView) orderPageView {
	out := orderPageView{Orders: make([]orderView, 0, len(p.Orders)), Total: p.Total, Page: p.Page, Limit: p.Limit}
	for _, o := range p.Orders {
		out.Orders = append(out.Orders, view(o))
	}
	return out
}

type productView struct {
	ID    string `json:"id"`
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

func productOf(p orders.Product) productView {
	return productView{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price.StringFixed(2), Stock: p.Stock}
}

type movementView struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func movementOf(m orders.StockMovement) movementView {
	return movementView{
		ID:        m.ID,
		ProductID: m.ProductID,
		Type:      string(m.Type),
		Quantity:  m.Quantity,
		Reason:    m.Reason,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}
