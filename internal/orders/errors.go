package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrCodeMismatch        = errors.New("pickup code does not match")
	ErrInvalidPickupWindow = errors.New("chosen pickup slot exceeds allowed window")
	ErrMissingContact      = errors.New("no contact on file for channel")
	ErrDeliveryFailed      = errors.New("notification delivery failed")
	ErrGateway             = errors.New("payment gateway error")
	ErrSignatureInvalid    = errors.New("invalid webhook signature")
	ErrRateLimited         = errors.New("too many requests")
	ErrForbidden           = errors.New("forbidden")
)

// StockError names the product that blocked a reservation.
type StockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransitionError reports a status guard that did not hold.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
	Actual  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move %s -> %s (current %s)", e.OrderID, e.From, e.To, e.Actual)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
