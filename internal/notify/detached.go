package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/logging"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/metrics"
)

// Detached runs side tasks that must not hold up or fail the operation that
// started them. A task keeps the caller's context values (logger, trace) but
// not its cancellation, and gets its own timeout.
type Detached struct {
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewDetached(timeout time.Duration, m *metrics.Metrics) *Detached {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Detached{timeout: timeout, metrics: m}
}

func (d *Detached) Go(ctx context.Context, task string, fn func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		tctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		err := d.run(tctx, fn)
		d.metrics.Notification(task, err)
		if err != nil {
			logging.FromContext(base).Warn("detached_task_failed",
				zap.String("task", task),
				zap.Error(err),
			)
		}
	}()
}

func (d *Detached) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (d *Detached) Wait() { d.wg.Wait() }
