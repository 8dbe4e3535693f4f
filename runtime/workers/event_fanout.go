package workers

import (
	"chat-session/contract"
	"chat-session/domain/event"
	"context"
	"log/slog"
	"time"
)

// EventFanout decouples the session engine from slow consumers.
// The engine hands events to Consume, Run forwards each one to every sink in order.
//
// Sinks are called sequentially with a per-sink timeout, so a stuck terminal
// or cache cannot hold the others back forever. Delivery is best effort.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		events:      make(chan event.DomainEvent, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

// Buffer exposes the pending events for capacity sampling.
func (w *EventFanout) Buffer() <-chan event.DomainEvent { return w.events }

// Consume implements contract.EventSink. It only blocks when the buffer is full.
func (w *EventFanout) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case w.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout One sink after the other for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event", "type", string(evt.Type()), "error", err)
		}
		cancel()
	}
}
