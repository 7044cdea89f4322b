package chathub

import (
	"context"
	"log"

	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/models"
)

// EventSink receives engine events in the order they happened.
//
// Publish is called from the dispatcher goroutine. It must not call back into
// the engine synchronously: the engine emits while holding its locks.
type EventSink interface {
	Publish(ctx context.Context, ev models.ChatEvent) error
}

// SinkFunc adapts a plain function to EventSink.
type SinkFunc func(ctx context.Context, ev models.ChatEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev models.ChatEvent) error { return f(ctx, ev) }

// Dispatcher queues events and fans them out to the sinks one by one.
type Dispatcher struct {
	sinks  []EventSink
	events chan models.ChatEvent
}

// NewDispatcher creates a dispatcher for the given sinks.
func NewDispatcher(sinks ...EventSink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		events: make(chan models.ChatEvent, config.EventQueueSize),
	}
}

// Emit queues the event. It blocks when the queue is full, which keeps the
// order of events intact at the cost of stalling writers behind a slow sink.
func (d *Dispatcher) Emit(ev models.ChatEvent) {
	if len(d.sinks) == 0 {
		return
	}
	d.events <- ev
}

// Run delivers queued events until ctx is done. Sink errors are logged and do
// not stop delivery to the other sinks.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

// drain flushes what is already queued with a fresh context so the archive
// sees the final state on shutdown.
func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.ChatEvent) {
	for _, s := range d.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			log.Printf("ERROR: sink %T failed on %s: %v", s, ev.Type, err)
		}
	}
}
