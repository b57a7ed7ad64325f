package booth

import (
	"sync"

	"github.com/smazurov/lensnode/internal/lenskit"
)

// Placeholder output size shown until the session surface is mounted.
const (
	OutputWidth  = 1920
	OutputHeight = 1080
)

// View receives the booth's rendering instructions. Stage is the default
// implementation; wrappers can observe or mirror the calls.
type View interface {
	MountOutput(surface lenskit.Surface)
	SetCameraOptions(options []Choice, selected string)
	SetLensOptions(options []Choice, selected string)
	Unmount()
}

// StageState is an immutable copy of the stage.
type StageState struct {
	Output  lenskit.Surface `json:"output" doc:"Session output surface"`
	Mounted bool            `json:"mounted" doc:"False while the placeholder is shown"`
	Cameras SelectorState   `json:"cameras" doc:"Camera selector"`
	Lenses  SelectorState   `json:"lenses" doc:"Lens selector"`
}

// Stage is the declarative booth page: an output surface and two selectors.
type Stage struct {
	mu      sync.Mutex
	output  lenskit.Surface
	mounted bool

	Cameras Selector
	Lenses  Selector
}

// NewStage returns a stage showing the placeholder surface.
func NewStage() *Stage {
	return &Stage{output: lenskit.Surface{Width: OutputWidth, Height: OutputHeight}}
}

// MountOutput replaces the placeholder with the session surface.
func (s *Stage) MountOutput(surface lenskit.Surface) {
	if surface.Width == 0 || surface.Height == 0 {
		surface.Width, surface.Height = OutputWidth, OutputHeight
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = surface
	s.mounted = true
}

// SetCameraOptions populates the camera selector.
func (s *Stage) SetCameraOptions(options []Choice, selected string) {
	s.Cameras.SetOptions(options, selected)
}

// SetLensOptions populates the lens selector.
func (s *Stage) SetLensOptions(options []Choice, selected string) {
	s.Lenses.SetOptions(options, selected)
}

// Unmount restores the placeholder.
func (s *Stage) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = lenskit.Surface{Width: OutputWidth, Height: OutputHeight}
	s.mounted = false
}

// State returns a copy of the stage.
func (s *Stage) State() StageState {
	s.mu.Lock()
	output, mounted := s.output, s.mounted
	s.mu.Unlock()
	return StageState{
		Output:  output,
		Mounted: mounted,
		Cameras: s.Cameras.State(),
		Lenses:  s.Lenses.State(),
	}
}
