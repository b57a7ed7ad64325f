package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan LensAppliedEvent, 1)

	unsub := bus.Subscribe(func(e LensAppliedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(LensAppliedEvent{LensID: "l19", Name: "Dog", GroupID: "grp"})

	got := <-received
	if got.LensID != "l19" || got.GroupID != "grp" {
		t.Errorf("got %+v", got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan SourceBoundEvent, 1)
	received2 := make(chan SourceBoundEvent, 1)

	unsub1 := bus.Subscribe(func(e SourceBoundEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e SourceBoundEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(SourceBoundEvent{DeviceID: "cam", Transform: "mirror-x"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) { received <- e })

	bus.Publish(CaptureErrorEvent{DeviceID: "cam"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DeviceID: "other"})
	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	stateReceived := make(chan bool, 1)
	lensReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ BoothStateEvent) { stateReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ LensAppliedEvent) { lensReceived <- true })
	defer unsub2()

	bus.Publish(BoothStateEvent{Phase: "running"})
	<-stateReceived

	select {
	case <-lensReceived:
		t.Fatal("lens subscriber received BoothStateEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ConcurrentPublish(_ *testing.T) {
	bus := New()
	const goroutines, perGoroutine = 10, 100
	receivedCh := make(chan bool, goroutines*perGoroutine)

	unsub := bus.Subscribe(func(_ DeviceDiscoveryEvent) { receivedCh <- true })
	defer unsub()

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				bus.Publish(DeviceDiscoveryEvent{Action: "changed"})
			}
		}()
	}
	wg.Wait()

	for range goroutines * perGoroutine {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name      string
		event     Event
		subscribe func(chan<- Event) func()
	}{
		{"BoothState", BoothStateEvent{Phase: "failed"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e BoothStateEvent) { ch <- e })
		}},
		{"SourceBound", SourceBoundEvent{DeviceID: "cam"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e SourceBoundEvent) { ch <- e })
		}},
		{"CaptureError", CaptureErrorEvent{DeviceID: "cam"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e CaptureErrorEvent) { ch <- e })
		}},
		{"LensApplied", LensAppliedEvent{LensID: "l1"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e LensAppliedEvent) { ch <- e })
		}},
		{"DeviceDiscovery", DeviceDiscoveryEvent{Action: "initial"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e DeviceDiscoveryEvent) { ch <- e })
		}},
		{"SelectionChanged", SelectionChangedEvent{Selector: "lens"}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e SelectionChangedEvent) { ch <- e })
		}},
		{"LogEntry", LogEntryEvent{Seq: 1}, func(ch chan<- Event) func() {
			return bus.Subscribe(func(e LogEntryEvent) { ch <- e })
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received := make(chan Event, 1)
			unsub := tt.subscribe(received)
			defer unsub()

			bus.Publish(tt.event)
			if got := <-received; got.Type() != tt.event.Type() {
				t.Errorf("got type %d, want %d", got.Type(), tt.event.Type())
			}
		})
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[SelectionChangedEvent](bus, ch)
	defer unsub()

	bus.Publish(SelectionChangedEvent{Selector: "camera", Value: "cam-2"})

	got, ok := (<-ch).(SelectionChangedEvent)
	if !ok {
		t.Fatal("expected SelectionChangedEvent")
	}
	if got.Value != "cam-2" {
		t.Errorf("value = %s, want cam-2", got.Value)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[BoothStateEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(BoothStateEvent{Phase: "running"})
		done <- true
	}()
	<-done
}
