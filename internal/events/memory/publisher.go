// Package memory collects published events in memory so tests can assert on
// the event contract without external sinks.
package memory

import (
	"context"
	"sync"

	"egireserve/internal/events"
)

// Publisher records every published event.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
}

func New() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event{}, p.events...)
}

// Reset clears the recorded events.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
