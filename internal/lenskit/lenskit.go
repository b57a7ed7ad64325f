package lenskit

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/lensnode/internal/media"
)

// Errors reported by runtime implementations.
var (
	ErrUnauthorized = errors.New("lenskit: credential rejected")
	ErrNotFound     = errors.New("lenskit: not found")
	ErrClosed       = errors.New("lenskit: closed")
)

// Lens is one AR effect from a catalog group.
type Lens struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id,omitempty"`
}

// Surface is the live output of a session.
type Surface struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Transform is a 2D transform applied to a source before rendering.
type Transform int

// Supported transforms.
const (
	TransformIdentity Transform = iota
	TransformMirrorX
)

func (t Transform) String() string {
	if t == TransformMirrorX {
		return "mirror-x"
	}
	return "identity"
}

// Source is a camera input bindable to a session.
type Source interface {
	Stream() media.Stream
	Transform() Transform
	SetTransform(t Transform)
}

// Session is a live rendering pipeline.
type Session interface {
	ID() string
	Output() Surface
	SetSource(ctx context.Context, source Source) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	ApplyLens(ctx context.Context, lens Lens) error
	Close(ctx context.Context) error
}

// LensRepository loads lenses from the remote catalog.
type LensRepository interface {
	// LoadLensGroups returns the lenses of every group, groups in request order.
	LoadLensGroups(ctx context.Context, groupIDs []string) ([]Lens, error)
}

// Runtime is a bootstrapped lens runtime.
type Runtime interface {
	CreateSession(ctx context.Context) (Session, error)
	Lenses() LensRepository
	Close(ctx context.Context) error
}

// Bootstrapper authenticates against the runtime provider.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, apiToken string) (Runtime, error)
}

// MediaStreamSource wraps a capture stream as a session source.
type MediaStreamSource struct {
	stream    media.Stream
	mu        sync.RWMutex
	transform Transform
}

// NewMediaStreamSource wraps stream with the identity transform.
func NewMediaStreamSource(stream media.Stream) *MediaStreamSource {
	return &MediaStreamSource{stream: stream}
}

// Stream returns the wrapped capture stream.
func (s *MediaStreamSource) Stream() media.Stream {
	return s.stream
}

// Transform returns the current transform.
func (s *MediaStreamSource) Transform() Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transform
}

// SetTransform changes the transform; sessions pick it up on the next Play.
func (s *MediaStreamSource) SetTransform(t Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transform = t
}
