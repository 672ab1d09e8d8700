package stock

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-pickup-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

// Claimer remembers processed event ids (redisx.Dedup).
type Claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// Relay turns stock.low events into alerts. It is the consumer handler of
// cmd/notifier.
type Relay struct {
	Alerter Alerter
	Dedup   Claimer // optional
}

func (r *Relay) Handle(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventStockLow {
		return nil
	}
	log := logging.FromContext(ctx).With(zap.String("event_id", env.EventID))

	// 2) dedup on event id
	if r.Dedup != nil {
		first, err := r.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.Debug("stock_low_duplicate")
			return nil
		}
	}

	// 3) payload
	p, err := kafkax.UnwrapPayload[orders.StockLowPayload](env.Payload)
	if err != nil {
		// a malformed payload will never decode; commit it
		log.Warn("stock_low_bad_payload", zap.Error(err))
		return nil
	}

	// 4) alert; on failure release the claim so the consumer's next attempt
	// can take it again
	product := orders.Product{ID: p.ProductID, SKU: p.SKU, Name: p.ProductName, Stock: p.Stock}
	if err := r.Alerter.LowStock(ctx, product, p.Threshold); err != nil {
		if r.Dedup != nil {
			if rerr := r.Dedup.Release(ctx, env.EventID); rerr != nil {
				log.Warn("dedup_release_failed", zap.Error(rerr))
			}
		}
		return err
	}
	log.Info("stock_low_alerted", zap.String("product_id", p.ProductID), zap.Int("stock", p.Stock))
	return nil
}
