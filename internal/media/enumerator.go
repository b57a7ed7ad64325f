package media

import (
	"context"
	"fmt"
)

// ListVideoInputDevices returns the video inputs reported by p, in platform order.
func ListVideoInputDevices(ctx context.Context, p Platform) ([]DeviceDescriptor, error) {
	all, err := p.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	cameras := make([]DeviceDescriptor, 0, len(all))
	for _, d := range all {
		if d.Kind == KindVideoInput {
			cameras = append(cameras, d)
		}
	}
	return cameras, nil
}
