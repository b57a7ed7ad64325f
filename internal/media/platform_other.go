//go:build !linux

package media

import (
	"context"
	"fmt"
	"runtime"
)

// V4L2Platform reports no devices outside Linux.
type V4L2Platform struct{}

// NewV4L2Platform returns a Platform with no devices on this OS.
func NewV4L2Platform() *V4L2Platform {
	return &V4L2Platform{}
}

// EnumerateDevices always returns an empty list.
func (p *V4L2Platform) EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	return []DeviceDescriptor{}, ctx.Err()
}

// GetUserMedia always fails: camera capture needs video4linux.
func (p *V4L2Platform) GetUserMedia(_ context.Context, _ Constraints) (Stream, error) {
	return nil, fmt.Errorf("capture on %s: %w", runtime.GOOS, ErrDeviceNotFound)
}
