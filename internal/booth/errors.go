package booth

import (
	"errors"
	"fmt"
)

// Error is a booth failure tagged with the stage it happened in.
type Error struct {
	Code    string
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrCaptureUnavailable) hold for capture errors
// regardless of the platform error they wrap.
func (e *Error) Is(target error) bool {
	return target == ErrCaptureUnavailable && e.Code == ErrCodeCaptureUnavailable
}

// Error codes.
const (
	ErrCodeBootstrapFailed    = "BOOTSTRAP_FAILED"
	ErrCodeSessionFailed      = "SESSION_FAILED"
	ErrCodeCatalogFailed      = "CATALOG_FAILED"
	ErrCodeLensFailed         = "LENS_FAILED"
	ErrCodeCaptureUnavailable = "CAPTURE_UNAVAILABLE"
	ErrCodeDevicesFailed      = "DEVICES_FAILED"
)

// Startup stages, in order.
const (
	StageBootstrap = "bootstrap"
	StageSession   = "session"
	StageCatalog   = "catalog"
	StageLens      = "lens"
	StageCapture   = "capture"
	StageDevices   = "devices"
)

var (
	// ErrCaptureUnavailable matches any failure to acquire a camera.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrSuperseded is returned by a bind that a newer bind replaced.
	ErrSuperseded = errors.New("bind superseded by a newer request")
	// ErrAlreadyStarted is returned by Start while the booth is starting or running.
	ErrAlreadyStarted = errors.New("booth already started")
	// ErrNotStarted is returned by operations that need a running booth.
	ErrNotStarted = errors.New("booth not started")
	// ErrUnknownDevice is returned when selecting a camera not in the list.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnknownLens is returned when selecting a lens not in the catalog.
	ErrUnknownLens = errors.New("unknown lens")
)

func newError(code, stage, message string, cause error) *Error {
	return &Error{Code: code, Stage: stage, Message: message, Cause: cause}
}
