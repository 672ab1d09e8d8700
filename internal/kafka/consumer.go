package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r        *kafka.Reader
	workers  int
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

const (
	defaultAttempts = 5
	defaultBackoff  = 200 * time.Millisecond
	maxBackoff      = 5 * time.Second
)

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		log:      log.With(zap.String("topic", topic), zap.String("group", group)),
	}
}

// Start fetches messages and fans them out to a fixed worker pool until ctx
// is canceled. A failing message is retried in place with backoff; once the
// attempts run out it is logged as dropped and committed, so delivery is at
// most c.attempts tries per message.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if err := c.process(ctx, h, m); err != nil {
					if ctx.Err() != nil {
						continue
					}
					c.log.Error("kafka_message_dropped",
						zap.Int("worker", id),
						zap.Int64("offset", m.Offset),
						zap.Error(err),
					)
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Warn("kafka_commit_failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i)
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h until it succeeds, the attempts are used up or ctx ends.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := c.backoff
	var err error
	for i := 1; ; i++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if i >= attempts {
			return err
		}
		c.log.Warn("kafka_handler_failed",
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if wait *= 2; wait > maxBackoff {
			wait = maxBackoff
		}
	}
}
