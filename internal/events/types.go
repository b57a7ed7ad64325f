package events

// Event type identifiers.
const (
	TypeBoothState uint32 = iota + 1
	TypeSourceBound
	TypeCaptureError
	TypeLensApplied
	TypeDeviceDiscovery
	TypeSelectionChanged
	TypeLogEntry
)

// Event is implemented by everything published on the Bus.
type Event interface {
	Type() uint32
}

// BoothStateEvent is published when the booth changes lifecycle phase.
type BoothStateEvent struct {
	Phase     string `json:"phase" example:"running" enum:"idle,starting,running,failed,stopped" doc:"Booth lifecycle phase"`
	Stage     string `json:"stage,omitempty" example:"catalog" doc:"Startup stage that failed, when phase is failed"`
	Code      string `json:"code,omitempty" example:"CATALOG_FAILED" doc:"Error code, when phase is failed"`
	Error     string `json:"error,omitempty" doc:"Error message, when phase is failed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeBoothState.
func (e BoothStateEvent) Type() uint32 { return TypeBoothState }

// SourceBoundEvent is published after a camera stream is bound and playing.
type SourceBoundEvent struct {
	DeviceID  string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Bound camera"`
	StreamID  string `json:"stream_id" doc:"Capture stream identifier"`
	Transform string `json:"transform" example:"mirror-x" doc:"Transform applied to the source"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeSourceBound.
func (e SourceBoundEvent) Type() uint32 { return TypeSourceBound }

// CaptureErrorEvent is published when a camera cannot be acquired.
type CaptureErrorEvent struct {
	DeviceID  string `json:"device_id,omitempty" doc:"Requested camera, empty for the default"`
	Message   string `json:"message" example:"Camera unavailable" doc:"Summary"`
	Error     string `json:"error" example:"media: device busy" doc:"Detailed error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeCaptureError.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// LensAppliedEvent is published after a lens is applied to the session.
type LensAppliedEvent struct {
	LensID    string `json:"lens_id" doc:"Applied lens"`
	Name      string `json:"name" doc:"Lens display name"`
	GroupID   string `json:"group_id,omitempty" doc:"Catalog group"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeLensApplied.
func (e LensAppliedEvent) Type() uint32 { return TypeLensApplied }

// DeviceInfo is one camera in a DeviceDiscoveryEvent.
type DeviceInfo struct {
	DeviceID string `json:"device_id" doc:"Stable device identifier"`
	Label    string `json:"label" doc:"Display name"`
}

// DeviceDiscoveryEvent is published when the camera list is re-enumerated.
type DeviceDiscoveryEvent struct {
	Action    string       `json:"action" example:"changed" doc:"What triggered the refresh: initial, changed"`
	Devices   []DeviceInfo `json:"devices" doc:"Video inputs after the refresh"`
	Timestamp string       `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeDeviceDiscovery.
func (e DeviceDiscoveryEvent) Type() uint32 { return TypeDeviceDiscovery }

// SelectionChangedEvent is published when a selector's value changes.
type SelectionChangedEvent struct {
	Selector  string `json:"selector" example:"camera" enum:"camera,lens" doc:"Which selector changed"`
	Value     string `json:"value" doc:"Newly selected value"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns TypeSelectionChanged.
func (e SelectionChangedEvent) Type() uint32 { return TypeSelectionChanged }

// LogEntryEvent carries one log line to SSE clients.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"booth" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns TypeLogEntry.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
