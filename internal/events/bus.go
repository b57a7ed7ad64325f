package events

import (
	"github.com/kelindar/event"
)

// Bus broadcasts booth events to in-process subscribers.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of its concrete type.
// Unknown event types are dropped.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case BoothStateEvent:
		event.Publish(b.dispatcher, e)
	case SourceBoundEvent:
		event.Publish(b.dispatcher, e)
	case CaptureErrorEvent:
		event.Publish(b.dispatcher, e)
	case LensAppliedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceDiscoveryEvent:
		event.Publish(b.dispatcher, e)
	case SelectionChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, whose parameter type picks the event:
//
//	unsub := bus.Subscribe(func(e events.LensAppliedEvent) { ... })
//
// It returns the unsubscribe func, a no-op for unsupported handler types.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(BoothStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SourceBoundEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LensAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceDiscoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SelectionChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
