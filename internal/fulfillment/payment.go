package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/lygos"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

// InitiatePayment asks the gateway for a checkout link. Only mobile money is
// supported and only orders still waiting for payment qualify.
func (s *Service) InitiatePayment(ctx context.Context, orderID, method string) (lygos.PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.InitiatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))
	log := logging.FromContext(ctx).With(zap.String("order_id", orderID))

	if orderID == "" || method == "" {
		return lygos.PaymentResult{}, invalid("orderId and method are required")
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return lygos.PaymentResult{}, err
	}
	if method != DefaultPaymentMethod {
		return lygos.PaymentResult{}, invalid("unsupported payment method %q", method)
	}
	if o.Status != orders.StatusPendingPayment {
		return lygos.PaymentResult{}, &orders.TransitionError{
			OrderID: o.ID, From: orders.StatusPendingPayment, To: orders.StatusPaid, Actual: o.Status,
		}
	}
	if s.gateway == nil {
		return lygos.PaymentResult{}, fmt.Errorf("%w: %w", orders.ErrGateway, lygos.ErrNotConfigured)
	}

	log.Info("payment_initiate", zap.String("amount", o.Amount.StringFixed(2)), zap.String("currency", o.Currency))
	res, err := s.gateway.InitiateMomoPayment(ctx, lygos.PaymentRequest{
		OrderID:       o.ID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		CustomerPhone: o.CustomerPhone,
	})
	if err != nil {
		log.Warn("payment_initiate_failed", zap.Error(err))
		return lygos.PaymentResult{}, err
	}

	provider := res.Provider
	if provider == "" {
		provider = lygos.ProviderName
	}
	if err := s.store.SetPaymentProvider(ctx, o.ID, provider); err != nil {
		log.Warn("payment_provider_not_recorded", zap.Error(err))
	}
	log.Info("payment_initiated",
		zap.String("provider", provider),
		zap.String("transaction_id", res.TransactionID),
		zap.Bool("has_payment_url", res.PaymentURL != ""),
	)
	return res, nil
}

// PaymentOutcome classifies a provider status.
type PaymentOutcome int

const (
	PaymentIgnored PaymentOutcome = iota
	PaymentSucceeded
	PaymentFailed
)

func ClassifyPaymentStatus(status string) PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "paid", "successful", "completed":
		return PaymentSucceeded
	case "failed", "canceled", "cancelled", "expired":
		return PaymentFailed
	}
	return PaymentIgnored
}

// WebhookResult tells the caller what a delivery did. Every value is
// acknowledged to the provider.
type WebhookResult string

const (
	WebhookApplied      WebhookResult = "applied"
	WebhookDuplicate    WebhookResult = "duplicate"
	WebhookIgnored      WebhookResult = "ignored"
	WebhookUnknownOrder WebhookResult = "unknown_order"
)

type webhookEvent struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Metadata  struct {
		OrderID string `json:"orderId"`
	} `json:"metadata"`
}

// HandlePaymentWebhook authenticates rawBody against signature, decodes it
// and applies the payment status. Replays are detected by the status guard
// and reported as WebhookDuplicate.
func (s *Service) HandlePaymentWebhook(ctx context.Context, rawBody []byte, signature string) (WebhookResult, error) {
	if !lygos.VerifySignature(s.cfg.WebhookSecret, rawBody, signature) {
		s.metrics.Webhook("bad_signature")
		return "", orders.ErrSignatureInvalid
	}
	var ev webhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		s.metrics.Webhook("bad_payload")
		return "", invalid("webhook body is not JSON")
	}
	reference := ev.Reference
	if reference == "" {
		reference = ev.Metadata.OrderID
	}
	if reference == "" || ev.Status == "" {
		s.metrics.Webhook("bad_payload")
		return "", invalid("webhook needs reference and status")
	}
	logging.FromContext(ctx).Info("payment_webhook_received",
		zap.String("order_id", reference),
		zap.String("status", ev.Status),
	)

	res, err := s.ApplyPaymentStatus(ctx, reference, ev.Status)
	if err != nil {
		s.metrics.Webhook("error")
		return "", err
	}
	s.metrics.Webhook(string(res))
	return res, nil
}

// ApplyPaymentStatus moves a pending order to paid or canceled. It is safe
// to call any number of times with the same arguments.
func (s *Service) ApplyPaymentStatus(ctx context.Context, orderID, status string) (WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.ApplyPaymentStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("payment.status", status))
	log := logging.FromContext(ctx).With(zap.String("order_id", orderID), zap.String("status", status))

	req := orders.TransitionRequest{
		OrderID: orderID,
		From:    orders.StatusPendingPayment,
		Actor:   "payment:" + lygos.ProviderName,
		At:      s.now().UTC(),
	}
	switch ClassifyPaymentStatus(status) {
	case PaymentSucceeded:
		code, err := newTempCode()
		if err != nil {
			return "", err
		}
		req.To = orders.StatusPaid
		req.TempPickupCode = code
	case PaymentFailed:
		req.To = orders.StatusCanceled
		req.Restock = true
		req.Reason = "order canceled"
	default:
		log.Info("payment_webhook_ignored")
		return WebhookIgnored, nil
	}

	res, err := s.store.Transition(ctx, req)
	var te *orders.TransitionError
	switch {
	case errors.As(err, &te):
		log.Info("payment_webhook_duplicate", zap.String("current", string(te.Actual)))
		return WebhookDuplicate, nil
	case errors.Is(err, orders.ErrNotFound):
		log.Warn("payment_webhook_unknown_order")
		return WebhookUnknownOrder, nil
	case err != nil:
		return "", err
	}

	s.committed(ctx, req.From, res.Order, req.Actor, req.Reason)
	if req.To == orders.StatusPaid {
		s.notifyCustomer(ctx, "confirmation", orderID, notify.Confirmation)
	} else {
		log.Info("order_restocked", zap.Int("products", len(res.Restocked)))
	}
	return WebhookApplied, nil
}

// Receipt channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// ResendReceipt re-sends the confirmation and waits for the provider's answer.
func (s *Service) ResendReceipt(ctx context.Context, orderID, channel string) error {
	if channel == "" {
		channel = ChannelEmail
	}
	if channel != ChannelEmail && channel != ChannelSMS {
		return invalid("unknown channel %q", channel)
	}
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	msg, err := notify.Receipt(o)
	if err != nil {
		return err
	}

	switch channel {
	case ChannelEmail:
		if o.CustomerEmail == "" {
			return fmt.Errorf("%w: no email on order %s", orders.ErrMissingContact, o.OrderNumber)
		}
		if s.mail == nil {
			return fmt.Errorf("%w: %w", orders.ErrDeliveryFailed, notify.ErrDisabled)
		}
		if err := s.mail.SendEmail(ctx, o.CustomerEmail, msg.Subject, msg.HTML); err != nil {
			return fmt.Errorf("%w: %w", orders.ErrDeliveryFailed, err)
		}
	case ChannelSMS:
		if o.CustomerPhone == "" {
			return fmt.Errorf("%w: no phone on order %s", orders.ErrMissingContact, o.OrderNumber)
		}
		if s.sms == nil {
			return fmt.Errorf("%w: %w", orders.ErrDeliveryFailed, notify.ErrDisabled)
		}
		if err := s.sms.SendSMS(ctx, o.CustomerPhone, msg.SMS); err != nil {
			return fmt.Errorf("%w: %w", orders.ErrDeliveryFailed, err)
		}
	}
	logging.FromContext(ctx).Info("receipt_resent", zap.String("order_id", o.ID), zap.String("channel", channel))
	return nil
}
