package fulfillment

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

func codesMatch(stored, given string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// ValidatePickupCode is the preparation checkpoint: a paid order's temporary
// code is exchanged for a final code that is sent to the customer.
func (s *Service) ValidatePickupCode(ctx context.Context, actor orders.Actor, orderID, tempCode string) (orders.Order, error) {
	if err := authorize(actor, orders.RolePreparer, orders.RoleAdmin); err != nil {
		return orders.Order{}, err
	}
	tempCode = strings.TrimSpace(tempCode)
	if orderID == "" || tempCode == "" {
		return orders.Order{}, invalid("orderId and temporaryCode are required")
	}
	ctx, span := s.tracer.Start(ctx, "fulfillment.ValidatePickupCode")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status != orders.StatusPaid || !codesMatch(o.TempPickupCode, tempCode) {
		logging.FromContext(ctx).Info("pickup_code_rejected", zap.String("order_id", orderID), zap.String("stage", "temporary"))
		return orders.Order{}, orders.ErrCodeMismatch
	}

	final, err := newFinalCode()
	if err != nil {
		return orders.Order{}, err
	}
	res, err := s.store.Transition(ctx, orders.TransitionRequest{
		OrderID:         o.ID,
		From:            orders.StatusPaid,
		To:              orders.StatusConfirmed,
		FinalPickupCode: final,
		Actor:           actor.String(),
		At:              s.now().UTC(),
	})
	if errors.Is(err, orders.ErrInvalidTransition) {
		// another checkpoint consumed the code first
		return orders.Order{}, orders.ErrCodeMismatch
	}
	if err != nil {
		return orders.Order{}, err
	}

	s.committed(ctx, orders.StatusPaid, res.Order, actor.String(), "")
	s.notifyCustomer(ctx, "final_code", o.ID, notify.FinalCode)
	return res.Order, nil
}

// VerifyFinalPickupCode is the cashier checkpoint that hands the order over.
func (s *Service) VerifyFinalPickupCode(ctx context.Context, actor orders.Actor, orderID, finalCode string) (orders.Order, error) {
	if err := authorize(actor, orders.RoleCashier, orders.RoleAdmin); err != nil {
		return orders.Order{}, err
	}
	finalCode = strings.TrimSpace(finalCode)
	if orderID == "" || finalCode == "" {
		return orders.Order{}, invalid("orderId and finalCode are required")
	}
	ctx, span := s.tracer.Start(ctx, "fulfillment.VerifyFinalPickupCode")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status != orders.StatusConfirmed || !codesMatch(o.FinalPickupCode, finalCode) {
		logging.FromContext(ctx).Info("pickup_code_rejected", zap.String("order_id", orderID), zap.String("stage", "final"))
		return orders.Order{}, orders.ErrCodeMismatch
	}

	res, err := s.store.Transition(ctx, orders.TransitionRequest{
		OrderID: o.ID,
		From:    orders.StatusConfirmed,
		To:      orders.StatusCompleted,
		Actor:   actor.String(),
		At:      s.now().UTC(),
	})
	if errors.Is(err, orders.ErrInvalidTransition) {
		return orders.Order{}, orders.ErrCodeMismatch
	}
	if err != nil {
		return orders.Order{}, err
	}
	s.committed(ctx, orders.StatusConfirmed, res.Order, actor.String(), "")
	return res.Order, nil
}
