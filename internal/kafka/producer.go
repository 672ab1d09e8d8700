package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

// ErrBufferFull is returned when the producer inbox has no room. The event is
// dropped; lifecycle state never waits on the broker.
var ErrBufferFull = errors.New("kafka: producer buffer full")

// Producer writes to any topic from one background goroutine. Publish only
// enqueues.
type Producer struct {
	w      *kafka.Writer
	inbox  chan kafka.Message
	doneCh chan struct{}
	log    *zap.Logger
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		inbox:  make(chan kafka.Message, buf),
		doneCh: make(chan struct{}),
		log:    log,
	}
}

// Start runs the write loop until ctx is done, then flushes what is buffered
// and closes the writer.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				if err := p.w.Close(); err != nil {
					p.log.Warn("kafka_writer_close_failed", zap.Error(err))
				}
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Warn("kafka_publish_failed",
			zap.String("topic", m.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

// Send enqueues a raw message without blocking.
func (p *Producer) Send(topic string, key, value []byte, headers ...kafka.Header) error {
	select {
	case p.inbox <- kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return fmt.Errorf("%w: topic %s", ErrBufferFull, topic)
	}
}

// Publish implements orders.Publisher. The partition key is the envelope
// correlation id so events of one order or product stay ordered.
func (p *Producer) Publish(ctx context.Context, topic string, env orders.Envelope) error {
	_ = ctx
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.EventType, err)
	}
	return p.Send(topic, orders.PartitionKey(env.CorrelationID), b,
		kafka.Header{Key: "event_type", Value: []byte(env.EventType)},
	)
}

// WaitClosed blocks until the write loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.doneCh }

var _ orders.Publisher = (*Producer)(nil)
