package media

import (
	"context"
	"errors"
)

// DeviceKind classifies a media device the way browsers do in enumerateDevices.
type DeviceKind int

// DeviceKind definitions.
const (
	KindVideoInput DeviceKind = iota + 1
	KindAudioInput
	KindAudioOutput
)

func (k DeviceKind) String() string {
	switch k {
	case KindVideoInput:
		return "videoinput"
	case KindAudioInput:
		return "audioinput"
	case KindAudioOutput:
		return "audiooutput"
	default:
		return "unknown"
	}
}

// DeviceDescriptor is an immutable snapshot of one device from a single enumeration.
type DeviceDescriptor struct {
	DeviceID string
	Kind     DeviceKind
	Label    string
}

// Constraints narrows which device GetUserMedia opens.
// An empty DeviceID means the platform default.
type Constraints struct {
	DeviceID string
}

// TrackState reports whether a track is still producing frames.
type TrackState int

// Track states.
const (
	TrackLive TrackState = iota
	TrackEnded
)

func (s TrackState) String() string {
	if s == TrackLive {
		return "live"
	}
	return "ended"
}

// Track is a single stoppable track of a capture stream.
type Track interface {
	ID() string
	State() TrackState
	// Stop releases the underlying device. Stopping an ended track is a no-op.
	Stop() error
}

// Stream is a live camera capture.
type Stream interface {
	ID() string
	DeviceID() string
	VideoTracks() []Track
}

// Platform is the media capability of the host: device listing and camera acquisition.
type Platform interface {
	EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error)
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// Errors returned by GetUserMedia and EnumerateDevices.
var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
	ErrDeviceBusy       = errors.New("media: device busy")
)

// StopVideoTracks stops every video track of s and returns the first error.
func StopVideoTracks(s Stream) error {
	var first error
	for _, t := range s.VideoTracks() {
		if err := t.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
