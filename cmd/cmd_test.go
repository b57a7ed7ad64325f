package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/lenskit/lenskittest"
	"github.com/smazurov/lensnode/internal/media"
	"github.com/smazurov/lensnode/internal/media/mediatest"
)

func testPlatform() *mediatest.Platform {
	return mediatest.NewPlatform(
		media.DeviceDescriptor{DeviceID: "cam-a", Kind: media.KindVideoInput, Label: "Front Camera"},
		media.DeviceDescriptor{DeviceID: "mic", Kind: media.KindAudioInput, Label: "USB Mic"},
		media.DeviceDescriptor{DeviceID: "cam-b", Kind: media.KindVideoInput, Label: "Side Camera"},
	)
}

func TestDevicesCmdListsCameras(t *testing.T) {
	var out bytes.Buffer
	c := CreateDevicesCmd(testPlatform())
	c.SetOut(&out)
	c.SetArgs([]string{})

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"DEVICE ID", "cam-a", "Front Camera", "cam-b"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "USB Mic") {
		t.Errorf("audio device listed without --all:\n%s", got)
	}
}

func TestDevicesCmdAllJSON(t *testing.T) {
	var out bytes.Buffer
	c := CreateDevicesCmd(testPlatform())
	c.SetOut(&out)
	c.SetArgs([]string{"--all", "--json"})

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var rows []deviceRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1].DeviceID != "mic" || rows[1].Kind != "audioinput" {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestDevicesCmdEnumerationError(t *testing.T) {
	p := testPlatform()
	p.FailEnumerate(errors.New("no sysfs"))

	c := CreateDevicesCmd(p)
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{})

	if err := c.Execute(); err == nil || !strings.Contains(err.Error(), "no sysfs") {
		t.Fatalf("Execute error = %v, want enumeration failure", err)
	}
}

func TestWriteDevicesEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := writeDevices(&out, nil, false); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "No devices found\n" {
		t.Errorf("output = %q", got)
	}
}

func newLensProvider() *lenskittest.Provider {
	p := lenskittest.NewProvider("tok", nil)
	p.AddGroup("grp",
		lenskit.Lens{ID: "l0", Name: "Glasses"},
		lenskit.Lens{ID: "l1", Name: "Confetti"},
	)
	return p
}

func TestListLenses(t *testing.T) {
	p := newLensProvider()

	lenses, err := ListLenses(t.Context(), p, "tok", "grp")
	if err != nil {
		t.Fatalf("ListLenses failed: %v", err)
	}
	if len(lenses) != 2 || lenses[0].ID != "l0" || lenses[1].GroupID != "grp" {
		t.Errorf("lenses = %+v", lenses)
	}
	if !p.Runtime().Closed() {
		t.Error("runtime was not closed")
	}
}

func TestListLensesErrors(t *testing.T) {
	p := newLensProvider()

	if _, err := ListLenses(t.Context(), p, "wrong", "grp"); !errors.Is(err, lenskit.ErrUnauthorized) {
		t.Errorf("bad token error = %v, want ErrUnauthorized", err)
	}

	_, err := ListLenses(t.Context(), p, "tok", "missing")
	if !errors.Is(err, lenskit.ErrNotFound) {
		t.Errorf("unknown group error = %v, want ErrNotFound", err)
	}
	if !p.Runtime().Closed() {
		t.Error("runtime was not closed after a failed load")
	}
}

func TestLensesCmd(t *testing.T) {
	p := newLensProvider()
	var gotURL string

	var out bytes.Buffer
	c := CreateLensesCmd(func(baseURL string) lenskit.Bootstrapper {
		gotURL = baseURL
		return p
	})
	c.SetOut(&out)
	c.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "missing.toml"),
		"--api-token", "tok",
		"--lens-group-id", "grp",
	})

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gotURL != DefaultRuntimeBaseURL {
		t.Errorf("base URL = %q, want %q", gotURL, DefaultRuntimeBaseURL)
	}
	for _, want := range []string{"INDEX", "l0", "Glasses", "1", "Confetti"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestLensesCmdRequiresToken(t *testing.T) {
	t.Setenv("LENSNODE_API_TOKEN", "")
	t.Setenv("API_TOKEN", "")

	c := CreateLensesCmd(func(string) lenskit.Bootstrapper { return newLensProvider() })
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "--lens-group-id", "grp"})

	if err := c.Execute(); err == nil || !strings.Contains(err.Error(), "API_TOKEN") {
		t.Fatalf("Execute error = %v, want missing token", err)
	}
}
