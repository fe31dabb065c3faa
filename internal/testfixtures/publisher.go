package testfixtures

import (
	"context"
	"sync"

	"github.com/iliyamo/table-reservation/internal/queue"
)

// Publisher records published events. Setting Err makes every publish fail
// after recording.
type Publisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	Err    error
}

// Publish records ev.
func (p *Publisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []queue.ReservationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.ReservationEvent(nil), p.events...)
}

// Types returns the recorded event types in order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
