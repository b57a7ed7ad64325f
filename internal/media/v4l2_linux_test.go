//go:build linux

package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadPCMDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm")
	content := "00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1\n" +
		"00-01: ALC892 Digital : ALC892 Digital : playback 1\n" +
		"01-00: USB Audio : USB Audio : capture 1\n" +
		"garbage\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readPCMDevices(path)
	if err != nil {
		t.Fatalf("readPCMDevices() error = %v", err)
	}

	want := []DeviceDescriptor{
		{DeviceID: "alsa-00-00", Kind: KindAudioOutput, Label: "ALC892 Analog"},
		{DeviceID: "alsa-00-00", Kind: KindAudioInput, Label: "ALC892 Analog"},
		{DeviceID: "alsa-00-01", Kind: KindAudioOutput, Label: "ALC892 Digital"},
		{DeviceID: "alsa-01-00", Kind: KindAudioInput, Label: "USB Audio"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d devices, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("device[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFindStableID(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "usb-Logitech_C920_ABC123-video-index0")
	if err := os.Symlink("../../video2", link); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../../video3", filepath.Join(dir, "usb-Logitech_C920_ABC123-video-index1")); err != nil {
		t.Fatal(err)
	}

	if got := findStableID(dir, "video2", 0); got != "usb-Logitech_C920_ABC123-video-index0" {
		t.Errorf("findStableID(video2) = %q", got)
	}
	if got := findStableID(dir, "video9", 0); got != "" {
		t.Errorf("findStableID(video9) = %q, want empty", got)
	}
	if got := findStableID(filepath.Join(dir, "missing"), "video2", 0); got != "" {
		t.Errorf("findStableID(missing dir) = %q, want empty", got)
	}
}

func TestOpenCamera_ExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := openCamera(path, "cam")
	if err != nil {
		t.Fatalf("first open error = %v", err)
	}

	if _, err := openCamera(path, "cam"); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("second open error = %v, want ErrDeviceBusy", err)
	}

	track := first.VideoTracks()[0]
	if err := track.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if track.State() != TrackEnded {
		t.Error("track should be ended after Stop")
	}
	if err := track.Stop(); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}

	again, err := openCamera(path, "cam")
	if err != nil {
		t.Fatalf("open after release error = %v", err)
	}
	_ = again.VideoTracks()[0].Stop()
}

func TestOpenCamera_MissingDevice(t *testing.T) {
	_, err := openCamera(filepath.Join(t.TempDir(), "video7"), "cam")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestV4L2Platform_EmptySysfs(t *testing.T) {
	p := NewV4L2Platform()
	p.sysClassDir = filepath.Join(t.TempDir(), "none")
	p.asoundPCM = filepath.Join(t.TempDir(), "none")

	devices, err := p.EnumerateDevices(t.Context())
	if err != nil {
		t.Fatalf("EnumerateDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}

	if _, err := p.GetUserMedia(t.Context(), Constraints{}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetUserMedia() error = %v, want ErrDeviceNotFound", err)
	}
}
