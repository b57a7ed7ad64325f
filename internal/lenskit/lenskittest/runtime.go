// Package lenskittest provides a recording in-memory lens runtime for tests.
package lenskittest

import (
	"context"
	"fmt"
	"sync"

	"github.com/smazurov/lensnode/internal/lenskit"
)

// CallLog is an ordered, concurrency-safe record of calls. Tests share one
// log between the runtime and their own fakes to assert cross-component order.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a formatted entry.
func (l *CallLog) Record(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded entries.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Index returns the position of the first entry equal to call, or -1.
func (l *CallLog) Index(call string) int {
	for i, c := range l.Calls() {
		if c == call {
			return i
		}
	}
	return -1
}

// Count returns how many entries equal call.
func (l *CallLog) Count(call string) int {
	n := 0
	for _, c := range l.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Op names a runtime operation for error injection.
type Op string

// Operations that can be made to fail.
const (
	OpBootstrap     Op = "bootstrap"
	OpCreateSession Op = "create_session"
	OpLoadLenses    Op = "load_lenses"
	OpSetSource     Op = "set_source"
	OpPlay          Op = "play"
	OpPause         Op = "pause"
	OpApplyLens     Op = "apply_lens"
)

// Provider is a fake lenskit.Bootstrapper. Every call on it, its runtime and
// its sessions is recorded in Log as "op arg".
type Provider struct {
	Log *CallLog

	mu       sync.Mutex
	token    string
	groups   map[string][]lenskit.Lens
	failures map[Op]error
	runtimes []*Runtime
	sessions []*Session
}

// NewProvider returns a provider accepting token. A nil log gets a fresh one.
func NewProvider(token string, log *CallLog) *Provider {
	if log == nil {
		log = &CallLog{}
	}
	return &Provider{
		Log:      log,
		token:    token,
		groups:   make(map[string][]lenskit.Lens),
		failures: make(map[Op]error),
	}
}

// AddGroup registers the lenses of a catalog group.
func (p *Provider) AddGroup(groupID string, lenses ...lenskit.Lens) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups[groupID] = lenses
}

// Fail makes op return err from now on; nil clears it.
func (p *Provider) Fail(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Provider) failure(op Op) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[op]
}

// Session returns the most recently created session, or nil.
func (p *Provider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Runtime returns the most recently bootstrapped runtime, or nil.
func (p *Provider) Runtime() *Runtime {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.runtimes) == 0 {
		return nil
	}
	return p.runtimes[len(p.runtimes)-1]
}

// Bootstrap implements lenskit.Bootstrapper.
func (p *Provider) Bootstrap(ctx context.Context, apiToken string) (lenskit.Runtime, error) {
	p.Log.Record("bootstrap %s", apiToken)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.failure(OpBootstrap); err != nil {
		return nil, err
	}
	if apiToken != p.token {
		return nil, lenskit.ErrUnauthorized
	}

	rt := &Runtime{provider: p}
	p.mu.Lock()
	p.runtimes = append(p.runtimes, rt)
	p.mu.Unlock()
	return rt, nil
}

// Runtime is the fake lenskit.Runtime.
type Runtime struct {
	provider *Provider

	mu     sync.Mutex
	closed bool
}

// CreateSession implements lenskit.Runtime.
func (r *Runtime) CreateSession(ctx context.Context) (lenskit.Session, error) {
	p := r.provider
	p.Log.Record("create_session")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.failure(OpCreateSession); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s := &Session{
		provider: p,
		id:       fmt.Sprintf("session-%d", len(p.sessions)+1),
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Lenses implements lenskit.Runtime.
func (r *Runtime) Lenses() lenskit.LensRepository {
	return repository{provider: r.provider}
}

// Close implements lenskit.Runtime.
func (r *Runtime) Close(_ context.Context) error {
	r.provider.Log.Record("close_runtime")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type repository struct {
	provider *Provider
}

func (r repository) LoadLensGroups(ctx context.Context, groupIDs []string) ([]lenskit.Lens, error) {
	p := r.provider
	for _, id := range groupIDs {
		p.Log.Record("load_lenses %s", id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.failure(OpLoadLenses); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []lenskit.Lens
	for _, id := range groupIDs {
		group, ok := p.groups[id]
		if !ok {
			return nil, fmt.Errorf("group %s: %w", id, lenskit.ErrNotFound)
		}
		for _, lens := range group {
			lens.GroupID = id
			out = append(out, lens)
		}
	}
	return out, nil
}

// Session is the fake lenskit.Session.
type Session struct {
	provider *Provider
	id       string

	mu        sync.Mutex
	source    lenskit.Source
	lens      *lenskit.Lens
	playing   bool
	closed    bool
	applied   []string
	transform []lenskit.Transform
}

// Output is the fixed booth surface size.
func (s *Session) Output() lenskit.Surface {
	return lenskit.Surface{URL: "fake://" + s.id, Width: 1920, Height: 1080}
}

// ID implements lenskit.Session.
func (s *Session) ID() string { return s.id }

// SetSource implements lenskit.Session.
func (s *Session) SetSource(ctx context.Context, source lenskit.Source) error {
	s.provider.Log.Record("set_source %s", source.Stream().ID())
	if err := s.check(ctx, OpSetSource); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	return nil
}

// Play implements lenskit.Session and records the source transform at play time.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	transform := lenskit.TransformIdentity
	if s.source != nil {
		transform = s.source.Transform()
	}
	s.mu.Unlock()

	s.provider.Log.Record("play %s", transform)
	if err := s.check(ctx, OpPlay); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.transform = append(s.transform, transform)
	return nil
}

// Pause implements lenskit.Session.
func (s *Session) Pause(ctx context.Context) error {
	s.provider.Log.Record("pause")
	if err := s.check(ctx, OpPause); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return nil
}

// ApplyLens implements lenskit.Session.
func (s *Session) ApplyLens(ctx context.Context, lens lenskit.Lens) error {
	s.provider.Log.Record("apply_lens %s", lens.ID)
	if err := s.check(ctx, OpApplyLens); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lens = &lens
	s.applied = append(s.applied, lens.ID)
	return nil
}

// Close implements lenskit.Session. Closing twice is an error, as with the real runtime.
func (s *Session) Close(_ context.Context) error {
	s.provider.Log.Record("close_session")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lenskit.ErrClosed
	}
	s.closed = true
	s.playing = false
	return nil
}

func (s *Session) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return lenskit.ErrClosed
	}
	return s.provider.failure(op)
}

// Source returns the currently bound source, or nil.
func (s *Session) Source() lenskit.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Lens returns the current lens.
func (s *Session) Lens() (lenskit.Lens, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lens == nil {
		return lenskit.Lens{}, false
	}
	return *s.lens, true
}

// Applied returns every lens id applied, in order.
func (s *Session) Applied() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

// PlayTransforms returns the source transform seen by each successful Play.
func (s *Session) PlayTransforms() []lenskit.Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lenskit.Transform(nil), s.transform...)
}

// Playing reports whether the session is rendering.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Closed reports whether Close succeeded.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
