package booth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/media"
	"github.com/smazurov/lensnode/internal/metrics"
)

// sourceBinder owns the single active capture stream of a booth.
//
// Binds run one at a time. A new bind cancels the context of the bind in
// flight before queueing, so the most recently issued bind always wins and
// every superseded bind releases whatever it acquired.
type sourceBinder struct {
	platform media.Platform
	logger   *slog.Logger
	sem      chan struct{}

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	active   media.Stream
	source   *lenskit.MediaStreamSource
	lastGood string
	closed   bool
}

func newSourceBinder(platform media.Platform, logger *slog.Logger) *sourceBinder {
	return &sourceBinder{
		platform: platform,
		logger:   logger,
		sem:      make(chan struct{}, 1),
	}
}

// bind replaces the active stream with one from deviceID ("" for the default camera).
func (b *sourceBinder) bind(ctx context.Context, session lenskit.Session, deviceID string) (media.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrNotStarted
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.seq++
	seq := b.seq
	b.cancel = cancel
	b.mu.Unlock()

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, b.interrupted(ctx, seq)
	}
	defer func() { <-b.sem }()

	if ctx.Err() != nil {
		return nil, b.interrupted(ctx, seq)
	}

	if err := b.release(ctx, session); err != nil {
		if b.superseded(seq) {
			return nil, ErrSuperseded
		}
		return nil, newError(ErrCodeSessionFailed, StageCapture, "pause session", err)
	}

	stream, err := b.platform.GetUserMedia(ctx, media.Constraints{DeviceID: deviceID})
	if err != nil {
		if b.superseded(seq) {
			return nil, ErrSuperseded
		}
		metrics.RecordCaptureFailure(failureReason(err))
		return nil, newError(ErrCodeCaptureUnavailable, StageCapture, describeDevice(deviceID), err)
	}

	if b.superseded(seq) {
		b.stop(stream)
		return nil, ErrSuperseded
	}

	source := lenskit.NewMediaStreamSource(stream)
	if err := session.SetSource(ctx, source); err != nil {
		b.stop(stream)
		if b.superseded(seq) {
			return nil, ErrSuperseded
		}
		return nil, newError(ErrCodeSessionFailed, StageCapture, "set session source", err)
	}
	source.SetTransform(lenskit.TransformMirrorX)

	if err := session.Play(ctx); err != nil {
		b.stop(stream)
		if b.superseded(seq) {
			return nil, ErrSuperseded
		}
		return nil, newError(ErrCodeSessionFailed, StageCapture, "play session", err)
	}

	b.mu.Lock()
	if b.seq != seq || b.closed {
		b.mu.Unlock()
		// Lost the race after Play; leave the session paused with nothing bound.
		_ = session.Pause(context.WithoutCancel(ctx))
		b.stop(stream)
		return nil, ErrSuperseded
	}
	b.active = stream
	b.source = source
	b.lastGood = stream.DeviceID()
	b.mu.Unlock()

	metrics.SetActiveStreams(1)
	return stream, nil
}

// release pauses the session and then stops the active stream.
// The session is paused first so the renderer never reads a stopped track.
func (b *sourceBinder) release(ctx context.Context, session lenskit.Session) error {
	b.mu.Lock()
	prev := b.active
	b.mu.Unlock()
	if prev == nil {
		return nil
	}

	if session != nil {
		if err := session.Pause(ctx); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.active = nil
	b.source = nil
	b.mu.Unlock()

	metrics.SetActiveStreams(0)
	b.stop(prev)
	return nil
}

// close cancels any bind in flight, waits for it and releases the active stream.
// Later binds fail with ErrNotStarted. Calling close twice is a no-op.
func (b *sourceBinder) close(ctx context.Context, session lenskit.Session) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for bind in flight: %w", ctx.Err())
	}
	defer func() { <-b.sem }()

	return b.release(ctx, session)
}

func (b *sourceBinder) stop(stream media.Stream) {
	if err := media.StopVideoTracks(stream); err != nil {
		b.logger.Warn("Failed to stop camera stream", "stream_id", stream.ID(), "error", err)
	}
}

func (b *sourceBinder) superseded(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq != seq || b.closed
}

// interrupted classifies a bind that never reached the device.
func (b *sourceBinder) interrupted(ctx context.Context, seq uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return ErrNotStarted
	case b.seq != seq:
		return ErrSuperseded
	default:
		return newError(ErrCodeCaptureUnavailable, StageCapture, "bind interrupted", ctx.Err())
	}
}

// boundSource returns the active stream and its source, or nils.
func (b *sourceBinder) boundSource() (media.Stream, *lenskit.MediaStreamSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.source
}

// lastGoodDevice is the device of the most recent successful bind.
func (b *sourceBinder) lastGoodDevice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastGood
}

func describeDevice(deviceID string) string {
	if deviceID == "" {
		return "acquire default camera"
	}
	return "acquire camera " + deviceID
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, media.ErrDeviceNotFound):
		return "not_found"
	case errors.Is(err, media.ErrDeviceBusy):
		return "busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}
