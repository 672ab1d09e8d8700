package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/notify"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

type Alerter interface {
	LowStock(ctx context.Context, p orders.Product, threshold int) error
}

// EventAlerter publishes a stock.low event; cmd/notifier turns it into mail.
type EventAlerter struct {
	Publisher orders.Publisher
	Producer  string
}

func (a EventAlerter) LowStock(ctx context.Context, p orders.Product, threshold int) error {
	env, err := orders.NewEnvelope(ctx, orders.EventStockLow, a.Producer, p.ID, orders.StockLowPayload{
		ProductID:   p.ID,
		ProductName: p.Name,
		SKU:         p.SKU,
		Stock:       p.Stock,
		Threshold:   threshold,
	})
	if err != nil {
		return err
	}
	return a.Publisher.Publish(ctx, orders.TopicStockLow, env)
}

// MailAlerter e-mails every staff recipient directly.
type MailAlerter struct {
	Mail       notify.EmailSender
	Recipients []string
}

func (a MailAlerter) LowStock(ctx context.Context, p orders.Product, threshold int) error {
	if len(a.Recipients) == 0 {
		return nil
	}
	msg, err := notify.LowStock(p, threshold)
	if err != nil {
		return err
	}
	var errs []error
	for _, to := range a.Recipients {
		if err := a.Mail.SendEmail(ctx, to, msg.Subject, msg.HTML); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("low stock mail for %s: %w", p.SKU, err)
	}
	return nil
}
