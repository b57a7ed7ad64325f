package booth

import (
	"context"
	"slices"
	"sync"
)

// Choice is one entry of a selector.
type Choice struct {
	Value string `json:"value" doc:"Device or lens id"`
	Label string `json:"label" doc:"Display name"`
}

// SelectorState is an immutable copy of a selector.
type SelectorState struct {
	Options  []Choice `json:"options" doc:"Choices in display order"`
	Selected string   `json:"selected" doc:"Currently selected value"`
}

// ChangeFunc handles a selection change. It runs in the goroutine that changed
// the selection.
type ChangeFunc func(ctx context.Context, value string) error

// Selector holds an ordered option list and the selected value.
type Selector struct {
	mu       sync.Mutex
	options  []Choice
	selected string
	onChange ChangeFunc
}

// SetOptions replaces the option list. selected must be one of the options,
// otherwise the first option is selected.
func (s *Selector) SetOptions(options []Choice, selected string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = slices.Clone(options)
	switch {
	case containsValue(s.options, selected):
		s.selected = selected
	case len(s.options) > 0:
		s.selected = s.options[0].Value
	default:
		s.selected = ""
	}
}

// OnChange registers the change listener, replacing any previous one.
func (s *Selector) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Select records value as selected if it is an option, then calls the change
// listener with value. Values that are not options are still passed to the
// listener, which decides how to treat a stale selection.
func (s *Selector) Select(ctx context.Context, value string) error {
	s.mu.Lock()
	if containsValue(s.options, value) {
		s.selected = value
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, value)
}

// Has reports whether value is one of the options.
func (s *Selector) Has(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsValue(s.options, value)
}

// Selected returns the selected value.
func (s *Selector) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// State returns a copy of the options and selection.
func (s *Selector) State() SelectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelectorState{Options: slices.Clone(s.options), Selected: s.selected}
}

func containsValue(options []Choice, value string) bool {
	return slices.ContainsFunc(options, func(o Choice) bool { return o.Value == value })
}
