// Package mediatest provides an in-memory media.Platform for tests.
package mediatest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/lensnode/internal/media"
)

// Platform is a scripted media.Platform. The zero value has no devices.
type Platform struct {
	mu sync.Mutex

	devices      []media.DeviceDescriptor
	enumerateErr error
	acquireErr   error
	holds        map[string]chan struct{}
	ignoreCancel bool

	streams      []*Stream
	acquireCalls int
}

// NewPlatform returns a Platform reporting the given devices.
func NewPlatform(devices ...media.DeviceDescriptor) *Platform {
	return &Platform{devices: devices, holds: make(map[string]chan struct{})}
}

// SetDevices replaces the device list returned by EnumerateDevices.
func (p *Platform) SetDevices(devices ...media.DeviceDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = devices
}

// FailEnumerate makes EnumerateDevices return err (nil clears it).
func (p *Platform) FailEnumerate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enumerateErr = err
}

// FailAcquire makes GetUserMedia return err (nil clears it).
func (p *Platform) FailAcquire(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireErr = err
}

// IgnoreCancel makes held acquisitions complete even after their context is cancelled,
// like a permission prompt that resolves late.
func (p *Platform) IgnoreCancel(ignore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignoreCancel = ignore
}

// Hold blocks GetUserMedia for deviceID until the returned release func is called.
func (p *Platform) Hold(deviceID string) (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	if p.holds == nil {
		p.holds = make(map[string]chan struct{})
	}
	p.holds[deviceID] = ch
	p.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// EnumerateDevices returns the scripted device list.
func (p *Platform) EnumerateDevices(ctx context.Context) ([]media.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumerateErr != nil {
		return nil, p.enumerateErr
	}
	return append([]media.DeviceDescriptor(nil), p.devices...), nil
}

// GetUserMedia returns a new live stream for the requested device, or the first video input.
func (p *Platform) GetUserMedia(ctx context.Context, constraints media.Constraints) (media.Stream, error) {
	p.mu.Lock()
	p.acquireCalls++
	hold := p.holds[constraints.DeviceID]
	ignoreCancel := p.ignoreCancel
	p.mu.Unlock()

	if hold != nil {
		if ignoreCancel {
			<-hold
		} else {
			select {
			case <-hold:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}

	deviceID := constraints.DeviceID
	if deviceID == "" {
		for _, d := range p.devices {
			if d.Kind == media.KindVideoInput {
				deviceID = d.DeviceID
				break
			}
		}
	}
	if deviceID == "" {
		return nil, media.ErrDeviceNotFound
	}

	id := fmt.Sprintf("stream-%d", len(p.streams)+1)
	s := &Stream{id: id, deviceID: deviceID, track: &Track{id: id + "-video"}}
	p.streams = append(p.streams, s)
	return s, nil
}

// Streams returns every stream handed out so far, oldest first.
func (p *Platform) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Stream(nil), p.streams...)
}

// AcquireCalls counts GetUserMedia calls, including failed ones.
func (p *Platform) AcquireCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireCalls
}

// LiveStreams returns the streams whose video track is still live.
func (p *Platform) LiveStreams() []*Stream {
	var live []*Stream
	for _, s := range p.Streams() {
		if s.track.State() == media.TrackLive {
			live = append(live, s)
		}
	}
	return live
}

// Stream is a fake capture stream with a single video track.
type Stream struct {
	id       string
	deviceID string
	track    *Track
}

func (s *Stream) ID() string                 { return s.id }
func (s *Stream) DeviceID() string           { return s.deviceID }
func (s *Stream) VideoTracks() []media.Track { return []media.Track{s.track} }

// Track returns the concrete fake track.
func (s *Stream) Track() *Track { return s.track }

// Track is a fake video track that counts Stop calls.
type Track struct {
	id    string
	mu    sync.Mutex
	ended bool
	stops int
}

func (t *Track) ID() string { return t.id }

func (t *Track) State() media.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return media.TrackEnded
	}
	return media.TrackLive
}

func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.ended = true
	return nil
}

// Stops reports how many times Stop was called.
func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}
