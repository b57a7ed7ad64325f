//go:build linux

package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/smazurov/lensnode/internal/logging"
)

const (
	vidiocQueryCap = 0x80685600 // _IOR('V', 0, struct v4l2_capability), 104 bytes on all arches

	capVideoCapture       = 0x00000001
	capVideoCaptureMPlane = 0x00001000
	capDeviceCaps         = 0x80000000
)

// v4l2Capability mirrors struct v4l2_capability.
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// V4L2Platform enumerates V4L2 cameras and ALSA capture devices and opens
// cameras with an exclusive lock.
type V4L2Platform struct {
	sysClassDir string
	devDir      string
	byIDDir     string
	asoundPCM   string
	logger      *slog.Logger
}

// NewV4L2Platform returns a Platform backed by the host's video4linux and ALSA devices.
func NewV4L2Platform() *V4L2Platform {
	return &V4L2Platform{
		sysClassDir: "/sys/class/video4linux",
		devDir:      "/dev",
		byIDDir:     "/dev/v4l/by-id",
		asoundPCM:   "/proc/asound/pcm",
		logger:      logging.GetLogger("media"),
	}
}

// EnumerateDevices lists video capture devices followed by ALSA PCM devices.
func (p *V4L2Platform) EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cameras, err := p.findCameras()
	if err != nil {
		return nil, err
	}

	audio, err := readPCMDevices(p.asoundPCM)
	if err != nil {
		// No sound card is normal on headless capture boxes.
		p.logger.Debug("ALSA devices unavailable", "path", p.asoundPCM, "error", err)
	}

	devices := make([]DeviceDescriptor, 0, len(cameras)+len(audio))
	for _, c := range cameras {
		devices = append(devices, c.descriptor)
	}
	return append(devices, audio...), nil
}

// GetUserMedia opens the requested camera and locks it for exclusive use.
func (p *V4L2Platform) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cameras, err := p.findCameras()
	if err != nil {
		return nil, err
	}
	if len(cameras) == 0 {
		return nil, fmt.Errorf("no video input: %w", ErrDeviceNotFound)
	}

	target := cameras[0]
	if constraints.DeviceID != "" {
		found := false
		for _, c := range cameras {
			if c.descriptor.DeviceID == constraints.DeviceID {
				target = c
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("device %s: %w", constraints.DeviceID, ErrDeviceNotFound)
		}
	}

	stream, err := openCamera(target.path, target.descriptor.DeviceID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Camera acquired", "device_id", target.descriptor.DeviceID, "path", target.path, "stream_id", stream.ID())
	return stream, nil
}

type v4l2Camera struct {
	path       string
	descriptor DeviceDescriptor
}

func (p *V4L2Platform) findCameras() ([]v4l2Camera, error) {
	entries, err := os.ReadDir(p.sysClassDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", p.sysClassDir, err)
	}

	var cameras []v4l2Camera
	for _, entry := range entries {
		name := entry.Name()
		devicePath := filepath.Join(p.devDir, name)

		capability, err := queryCapability(devicePath)
		if err != nil {
			p.logger.Debug("Skipping video node", "path", devicePath, "error", err)
			continue
		}

		caps := capability.capabilities
		if caps&capDeviceCaps != 0 {
			caps = capability.deviceCaps
		}
		if caps&(capVideoCapture|capVideoCaptureMPlane) == 0 {
			continue
		}

		index := readSysfsInt(filepath.Join(p.sysClassDir, name, "index"))
		id := findStableID(p.byIDDir, name, index)
		if id == "" {
			busInfo := cstr(capability.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				id = fmt.Sprintf("%s-video-index%d", busInfo, index)
			} else {
				id = fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
			}
		}

		cameras = append(cameras, v4l2Camera{
			path: devicePath,
			descriptor: DeviceDescriptor{
				DeviceID: id,
				Kind:     KindVideoInput,
				Label:    cstr(capability.card[:]),
			},
		})
	}
	return cameras, nil
}

func queryCapability(path string) (*v4l2Capability, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	capability := &v4l2Capability{}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(vidiocQueryCap), uintptr(unsafe.Pointer(capability)))
	if errno != 0 {
		return nil, errno
	}
	return capability, nil
}

// findStableID resolves the /dev/v4l/by-id symlink pointing at deviceName.
func findStableID(byIDDir, deviceName string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	suffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == deviceName {
			return entry.Name()
		}
	}
	return ""
}

// readPCMDevices parses /proc/asound/pcm lines such as
// "00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1".
func readPCMDevices(path string) ([]DeviceDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var devices []DeviceDescriptor
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 {
			continue
		}
		id := strings.TrimSpace(fields[0])
		label := strings.TrimSpace(fields[1])
		for _, part := range fields[3:] {
			switch part = strings.TrimSpace(part); {
			case strings.HasPrefix(part, "capture"):
				devices = append(devices, DeviceDescriptor{DeviceID: "alsa-" + id, Kind: KindAudioInput, Label: label})
			case strings.HasPrefix(part, "playback"):
				devices = append(devices, DeviceDescriptor{DeviceID: "alsa-" + id, Kind: KindAudioOutput, Label: label})
			}
		}
	}
	return devices, scanner.Err()
}

func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	v, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return v
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// openCamera opens path and takes a non-blocking exclusive flock on it.
func openCamera(path, deviceID string) (*lockedStream, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, mapErrno(err))
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("lock %s: %w", path, mapErrno(err))
	}

	id := uuid.NewString()
	return &lockedStream{
		id:       id,
		deviceID: deviceID,
		track:    &lockedTrack{id: id + "-video", fd: fd},
	}, nil
}

func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	case errors.Is(err, unix.EBUSY), errors.Is(err, unix.EWOULDBLOCK):
		return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	default:
		return err
	}
}

type lockedStream struct {
	id       string
	deviceID string
	track    *lockedTrack
}

func (s *lockedStream) ID() string           { return s.id }
func (s *lockedStream) DeviceID() string     { return s.deviceID }
func (s *lockedStream) VideoTracks() []Track { return []Track{s.track} }

type lockedTrack struct {
	id    string
	mu    sync.Mutex
	fd    int
	ended bool
}

func (t *lockedTrack) ID() string { return t.id }

func (t *lockedTrack) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return TrackEnded
	}
	return TrackLive
}

func (t *lockedTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return nil
	}
	t.ended = true
	_ = unix.Flock(t.fd, unix.LOCK_UN)
	return unix.Close(t.fd)
}
