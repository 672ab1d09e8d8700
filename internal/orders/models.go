package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         string
	SKU        string
	Name       string
	Price      decimal.Decimal
	Stock      int
	Perishable bool
	CategoryID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type MovementType string

const (
	MovementIn     MovementType = "in"
	MovementOut    MovementType = "out"
	MovementAdjust MovementType = "adjust"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjust:
		return true
	}
	return false
}

// StockMovement is append-only. For adjust movements Quantity is the absolute
// stock level that was set.
type StockMovement struct {
	ID        string
	ProductID string
	Type      MovementType
	Quantity  int
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

type MovementInput struct {
	ProductID string
	Type      MovementType
	Quantity  int
	Reason    string
	Actor     string
}

type MovementFilter struct {
	ProductID string
	Type      MovementType
}

type PickupSlot struct {
	ID        string
	Date      time.Time // calendar day, time part ignored
	TimeFrom  string    // HH:MM
	TimeTo    string    // HH:MM
	Capacity  int
	Remaining int
	Active    bool
}

// StartsAt is the wall-clock start of the slot in loc. Slots without a start
// time open at 09:00.
func (s PickupSlot) StartsAt(loc *time.Location) (time.Time, error) {
	from := s.TimeFrom
	if from == "" {
		from = "09:00"
	}
	clock, err := time.Parse("15:04", from)
	if err != nil {
		return time.Time{}, fmt.Errorf("pickup slot %s: bad start time %q: %w", s.ID, from, err)
	}
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	PickupSlotID    string
	Amount          decimal.Decimal
	Currency        string
	PaymentMethod   string
	PaymentProvider string
	Notes           string
	Status          Status
	TempPickupCode  string
	FinalPickupCode string
	ExpiresAt       time.Time
	PaidAt          *time.Time
	CodeValidatedAt *time.Time
	PickedUpAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// hydrated by GetOrder
	Items      []OrderItem
	PickupSlot *PickupSlot
}

// OrderItem snapshots the product name and price at creation time.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
	Subtotal     decimal.Decimal
}

type OrderFilter struct {
	UserID string
	Status Status
}

// Page normalizes 1-based pagination arguments.
func Page(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}
