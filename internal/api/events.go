package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/lensnode/internal/events"
)

// registerSSERoutes registers the booth event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time booth state, camera binds, capture errors, lens changes and device hotplug",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"booth-state":       events.BoothStateEvent{},
		"source-bound":      events.SourceBoundEvent{},
		"capture-error":     events.CaptureErrorEvent{},
		"lens-applied":      events.LensAppliedEvent{},
		"device-discovery":  events.DeviceDiscoveryEvent{},
		"selection-changed": events.SelectionChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.BoothStateEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SourceBoundEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.LensAppliedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceDiscoveryEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SelectionChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// New clients start from the current phase.
		status := s.booth.Snapshot().Status
		if err := send.Data(events.BoothStateEvent{
			Phase:     string(status.Phase),
			Stage:     status.Stage,
			Code:      status.Code,
			Error:     status.Error,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
