package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds concurrent deliveries
const DefaultMaxInFlight = 8

// Dispatcher is a fire-and-forget Port that delivers each event to a
// Notifier on its own goroutine. Delivery errors and panics are swallowed.
type Dispatcher struct {
	sink   Notifier
	logger *zap.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering to sink
func NewDispatcher(sink Notifier, logger *zap.Logger) *Dispatcher {
	if sink == nil {
		sink = NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:   sink,
		logger: logger.With(zap.String("component", "notify")),
		sem:    semaphore.NewWeighted(DefaultMaxInFlight),
	}
}

// Emit schedules delivery and returns immediately
func (d *Dispatcher) Emit(event string, data map[string]any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		if err := d.deliver(event, data); err != nil {
			d.logger.Debug("notification dropped", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (d *Dispatcher) deliver(event string, data map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.sink.Send(FromEvent(event, data))
}

// Wait blocks until every emitted event has been delivered or dropped
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
