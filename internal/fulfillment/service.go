// Package fulfillment runs the order lifecycle: creation with stock
// reservation, payment, the two pickup checkpoints and cancellation.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/lygos"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/stock"
)

type PaymentGateway interface {
	InitiateMomoPayment(ctx context.Context, req lygos.PaymentRequest) (lygos.PaymentResult, error)
}

// StatusCache is the read-through cache behind GetOrderStatus.
type StatusCache interface {
	Set(ctx context.Context, orderID, status string, at time.Time) error
	Fill(ctx context.Context, orderID, status string, at time.Time) error
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
}

type Config struct {
	Location      *time.Location // wall clock of pickup slots
	Currency      string
	WebhookSecret string
	Producer      string // envelope producer name
}

type Deps struct {
	Store   orders.Store
	Ledger  *stock.Ledger
	Gateway PaymentGateway
	Mail    notify.EmailSender
	SMS     notify.SMSSender
	Tasks   stock.Runner
	Events  orders.Publisher
	Cache   StatusCache // optional
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Service struct {
	cfg     Config
	store   orders.Store
	ledger  *stock.Ledger
	gateway PaymentGateway
	mail    notify.EmailSender
	sms     notify.SMSSender
	tasks   stock.Runner
	events  orders.Publisher
	cache   StatusCache
	metrics *metrics.Metrics
	now     func() time.Time
	tracer  trace.Tracer
}

func New(cfg Config, d Deps) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "XAF"
	}
	if cfg.Producer == "" {
		cfg.Producer = "fulfillment-api"
	}
	if d.Ledger == nil {
		d.Ledger = stock.NewLedger(d.Store)
	}
	if d.Events == nil {
		d.Events = orders.NopPublisher{}
	}
	if d.Tasks == nil {
		d.Tasks = notify.NewDetached(0, d.Metrics)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		cfg:     cfg,
		store:   d.Store,
		ledger:  d.Ledger,
		gateway: d.Gateway,
		mail:    d.Mail,
		sms:     d.SMS,
		tasks:   d.Tasks,
		events:  d.Events,
		cache:   d.Cache,
		metrics: d.Metrics,
		now:     d.Now,
		tracer:  otel.Tracer("fulfillment"),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", orders.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func authorize(actor orders.Actor, roles ...orders.Role) error {
	if actor.HasRole(roles...) {
		return nil
	}
	return fmt.Errorf("%w: role %q may not do this", orders.ErrForbidden, actor.Role)
}

// committed runs the bookkeeping every successful transition shares: metrics,
// status cache, lifecycle event. None of it can fail the transition.
func (s *Service) committed(ctx context.Context, from orders.Status, o orders.Order, actor, reason string) {
	log := logging.FromContext(ctx)
	s.metrics.Transition(string(from), string(o.Status))
	log.Info("order_transitioned",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("actor", actor),
		zap.String("activity", "order."+string(o.Status)),
	)

	s.cacheStatus(ctx, o)

	eventType, topic := orders.StatusEvent(o.Status)
	if topic == "" {
		return
	}
	s.publish(ctx, topic, eventType, o.ID, orders.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		From:        from,
		Status:      o.Status,
		Actor:       actor,
		Reason:      reason,
	})
}

func (s *Service) cacheStatus(ctx context.Context, o orders.Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, o.ID, string(o.Status), o.UpdatedAt); err != nil {
		logging.FromContext(ctx).Warn("status_cache_set_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// fillStatus caches a status read from the store without clobbering one a
// concurrent transition has already written.
func (s *Service) fillStatus(ctx context.Context, o orders.Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Fill(ctx, o.ID, string(o.Status), o.UpdatedAt); err != nil {
		logging.FromContext(ctx).Warn("status_cache_fill_failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic, eventType, key string, payload any) {
	env, err := orders.NewEnvelope(ctx, eventType, s.cfg.Producer, key, payload)
	if err == nil {
		err = s.events.Publish(ctx, topic, env)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// notifyCustomer sends msg by e-mail and SMS as two detached tasks. The
// order is reloaded inside the task so the message sees committed state.
func (s *Service) notifyCustomer(ctx context.Context, task, orderID string, render func(orders.Order) (notify.Message, error)) {
	load := func(ctx context.Context) (orders.Order, notify.Message, error) {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return orders.Order{}, notify.Message{}, err
		}
		msg, err := render(o)
		return o, msg, err
	}
	if s.mail != nil {
		s.tasks.Go(ctx, task+"_email", func(ctx context.Context) error {
			o, msg, err := load(ctx)
			if err != nil || o.CustomerEmail == "" {
				return err
			}
			return s.mail.SendEmail(ctx, o.CustomerEmail, msg.Subject, msg.HTML)
		})
	}
	if s.sms != nil {
		s.tasks.Go(ctx, task+"_sms", func(ctx context.Context) error {
			o, msg, err := load(ctx)
			if err != nil || o.CustomerPhone == "" {
				return err
			}
			return s.sms.SendSMS(ctx, o.CustomerPhone, msg.SMS)
		})
	}
}
