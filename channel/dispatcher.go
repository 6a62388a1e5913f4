package channel

import (
	"carelink/contract"
	"carelink/domain/event"
	"context"
	"log/slog"
)

// ActiveSource tells the dispatcher which subscription id is current.
type ActiveSource interface {
	Active() event.SubscriptionID
}

// Dispatcher is the single consumer of the tagged event stream. Message
// events whose tag no longer matches the active subscription are
// dropped; lifecycle events always pass so the UI can observe
// transitions. Implements contract.Worker.
type Dispatcher struct {
	log    *slog.Logger
	source ActiveSource
	events <-chan event.ChannelEvent
	sinks  []contract.EventSink

	onStale func() // telemetry hook, may be nil
}

func NewDispatcher(log *slog.Logger, source ActiveSource,
	events <-chan event.ChannelEvent, sinks ...contract.EventSink) *Dispatcher {
	return &Dispatcher{log: log, source: source, events: events, sinks: sinks}
}

func (d *Dispatcher) OnStale(fn func()) { d.onStale = fn }

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("Context done, stopping dispatcher")
			return nil
		case e := <-d.events:
			d.dispatch(e)
		}
	}
}

func (d *Dispatcher) dispatch(e event.ChannelEvent) {
	if msg, ok := e.(event.MessageReceived); ok {
		if msg.SubscriptionID != d.source.Active() {
			d.log.Debug("Dropping event from released subscription",
				"conversation", msg.Conversation)
			if d.onStale != nil {
				d.onStale()
			}
			return
		}
	}
	for _, sink := range d.sinks {
		sink.Consume(e)
	}
}
