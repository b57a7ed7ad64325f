package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/lensnode/internal/lenskit"
)

type runtime struct {
	client *Client
	token  string
	id     string
}

type createSessionRequest struct {
	RuntimeID string `json:"runtime_id"`
}

type createSessionResponse struct {
	SessionID string          `json:"session_id"`
	Output    lenskit.Surface `json:"output"`
}

func (r *runtime) CreateSession(ctx context.Context) (lenskit.Session, error) {
	var resp createSessionResponse
	err := r.client.do(ctx, r.token, "POST", "/v1/sessions", createSessionRequest{RuntimeID: r.id}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.client.logger.Info("Session created", "session_id", resp.SessionID, "output", resp.Output.URL)
	return &session{runtime: r, id: resp.SessionID, output: resp.Output}, nil
}

func (r *runtime) Lenses() lenskit.LensRepository {
	return &lensRepository{runtime: r}
}

func (r *runtime) Close(ctx context.Context) error {
	return r.client.do(ctx, r.token, "DELETE", "/v1/runtime/"+escape(r.id), nil, nil)
}

type lensRepository struct {
	runtime *runtime
}

type lensGroupResponse struct {
	Lenses []lenskit.Lens `json:"lenses"`
}

func (l *lensRepository) LoadLensGroups(ctx context.Context, groupIDs []string) ([]lenskit.Lens, error) {
	var lenses []lenskit.Lens
	for _, groupID := range groupIDs {
		var resp lensGroupResponse
		path := "/v1/lens-groups/" + escape(groupID) + "/lenses"
		if err := l.runtime.client.do(ctx, l.runtime.token, "GET", path, nil, &resp); err != nil {
			return nil, fmt.Errorf("load lens group %s: %w", groupID, err)
		}
		for _, lens := range resp.Lenses {
			lens.GroupID = groupID
			lenses = append(lenses, lens)
		}
	}
	return lenses, nil
}

type session struct {
	runtime *runtime
	id      string
	output  lenskit.Surface

	mu     sync.Mutex
	source lenskit.Source
	closed bool
}

type setSourceRequest struct {
	StreamID string `json:"stream_id"`
	DeviceID string `json:"device_id"`
}

type playRequest struct {
	Transform string `json:"transform"`
}

type applyLensRequest struct {
	LensID  string `json:"lens_id"`
	GroupID string `json:"group_id,omitempty"`
}

func (s *session) ID() string              { return s.id }
func (s *session) Output() lenskit.Surface { return s.output }

func (s *session) path(suffix string) string {
	return "/v1/sessions/" + escape(s.id) + suffix
}

func (s *session) call(ctx context.Context, method, suffix string, in any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return lenskit.ErrClosed
	}
	return s.runtime.client.do(ctx, s.runtime.token, method, s.path(suffix), in, nil)
}

func (s *session) SetSource(ctx context.Context, source lenskit.Source) error {
	stream := source.Stream()
	req := setSourceRequest{StreamID: stream.ID(), DeviceID: stream.DeviceID()}
	if err := s.call(ctx, "PUT", "/source", req); err != nil {
		return fmt.Errorf("set source: %w", err)
	}

	s.mu.Lock()
	s.source = source
	s.mu.Unlock()
	return nil
}

// Play starts rendering with the source's current transform.
func (s *session) Play(ctx context.Context) error {
	s.mu.Lock()
	transform := lenskit.TransformIdentity
	if s.source != nil {
		transform = s.source.Transform()
	}
	s.mu.Unlock()

	if err := s.call(ctx, "POST", "/play", playRequest{Transform: transform.String()}); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (s *session) Pause(ctx context.Context) error {
	if err := s.call(ctx, "POST", "/pause", nil); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	return nil
}

func (s *session) ApplyLens(ctx context.Context, lens lenskit.Lens) error {
	if err := s.call(ctx, "PUT", "/lens", applyLensRequest{LensID: lens.ID, GroupID: lens.GroupID}); err != nil {
		return fmt.Errorf("apply lens %s: %w", lens.ID, err)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	if err := s.call(ctx, "DELETE", "", nil); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
