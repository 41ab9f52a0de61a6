package events

import (
	"context"
	"log/slog"
)

// Dispatcher decouples event publication from the request path. Services
// enqueue events after their transaction commits; a background worker fans
// them out to the configured publishers.
//
// The inbox is bounded: when it is full the event is dropped and counted,
// because blocking a request on a slow notification sink would couple ranking
// latency to downstream health.
type Dispatcher struct {
	inbox      chan Event
	publishers []Publisher
	logger     *slog.Logger
	dropped    func()
	published  func(t Type)
	failed     func()
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithDropCounter registers a callback invoked whenever an event is dropped.
func WithDropCounter(fn func()) Option {
	return func(d *Dispatcher) { d.dropped = fn }
}

// WithPublishCounters registers callbacks for successful and failed publishes.
func WithPublishCounters(published func(t Type), failed func()) Option {
	return func(d *Dispatcher) {
		d.published = published
		d.failed = failed
	}
}

// NewDispatcher builds a dispatcher with the given inbox capacity and sinks.
func NewDispatcher(capacity int, logger *slog.Logger, publishers []Publisher, opts ...Option) *Dispatcher {
	if capacity <= 0 {
		capacity = 1024
	}
	d := &Dispatcher{
		inbox:      make(chan Event, capacity),
		publishers: publishers,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue hands events to the background worker. Never blocks.
func (d *Dispatcher) Enqueue(evts ...Event) {
	for _, e := range evts {
		select {
		case d.inbox <- e:
		default:
			if d.dropped != nil {
				d.dropped()
			}
			d.logger.Warn("event inbox full, dropping event",
				"type", e.Type,
				"item_id", e.ItemID,
				"reservation_id", e.ReservationID,
			)
		}
	}
}

// Run consumes the inbox until ctx is cancelled, fanning each event out to
// every publisher. Publish failures are logged and do not stop the worker.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case event := <-d.inbox:
			d.fanOut(ctx, event)
		}
	}
}

// drain makes a best-effort pass over whatever is left in the inbox at
// shutdown, with a background context since the run context is gone.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.inbox:
			d.fanOut(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, event Event) {
	for _, p := range d.publishers {
		if err := p.Publish(ctx, event); err != nil {
			if d.failed != nil {
				d.failed()
			}
			d.logger.Error("event publish failed",
				"type", event.Type,
				"item_id", event.ItemID,
				"reservation_id", event.ReservationID,
				"error", err,
			)
			continue
		}
		if d.published != nil {
			d.published(event.Type)
		}
	}
}
