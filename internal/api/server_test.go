package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/lensnode/internal/api/models"
	"github.com/smazurov/lensnode/internal/booth"
	"github.com/smazurov/lensnode/internal/events"
	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/lenskit/lenskittest"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/smazurov/lensnode/internal/media"
	"github.com/smazurov/lensnode/internal/media/mediatest"
	"github.com/smazurov/lensnode/internal/metrics"
)

const (
	testUser = "admin"
	testPass = "secret"
)

var (
	camA = media.DeviceDescriptor{DeviceID: "cam-a", Kind: media.KindVideoInput, Label: "Front"}
	camB = media.DeviceDescriptor{DeviceID: "cam-b", Kind: media.KindVideoInput, Label: "Rear"}
	mic  = media.DeviceDescriptor{DeviceID: "mic", Kind: media.KindAudioInput, Label: "Mic"}
)

type harness struct {
	srv      *httptest.Server
	booth    *booth.Booth
	platform *mediatest.Platform
	bus      *events.Bus
}

// newHarness starts a real booth over fake media and runtime and serves the API for it.
func newHarness(t *testing.T) *harness {
	t.Helper()

	platform := mediatest.NewPlatform(camA, mic, camB)
	provider := lenskittest.NewProvider("tok", nil)
	lenses := make([]lenskit.Lens, 25)
	for i := range lenses {
		lenses[i] = lenskit.Lens{ID: fmt.Sprintf("l%d", i), Name: fmt.Sprintf("Lens %d", i)}
	}
	provider.AddGroup("grp", lenses...)

	bus := events.New()
	b := booth.New(booth.Config{
		APIToken:         "tok",
		LensGroupID:      "grp",
		DefaultLensIndex: booth.DefaultLensIndex,
	}, platform, provider, booth.WithEventBus(bus))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("booth Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	server := NewServer(&Options{
		AuthUsername:   testUser,
		AuthPassword:   testPass,
		Booth:          b,
		EventBus:       bus,
		MetricsHandler: metrics.HTTPHandler(),
	})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &harness{srv: srv, booth: b, platform: platform, bus: bus}
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(testUser, testPass)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if body["phase"] != "running" {
		t.Errorf("phase = %q, want running", body["phase"])
	}
}

func TestAuthFailures(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		header string
		query  string
	}{
		{name: "missing"},
		{name: "wrong scheme", header: "Bearer abc"},
		{name: "bad base64", header: "Basic !!!"},
		{name: "wrong password", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope"))},
		{name: "wrong query auth", query: "?auth=" + base64.StdEncoding.EncodeToString([]byte("x:y"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/booth"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
			if resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestGetBooth(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/api/booth", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := decode[booth.Snapshot](t, resp)

	if snap.Status.Phase != booth.PhaseRunning {
		t.Errorf("phase = %s", snap.Status.Phase)
	}
	if !snap.Stage.Mounted || snap.Stage.Output.Width != 1920 || snap.Stage.Output.Height != 1080 {
		t.Errorf("output = %+v mounted=%v", snap.Stage.Output, snap.Stage.Mounted)
	}
	if snap.Stage.Lenses.Selected != "l19" || len(snap.Stage.Lenses.Options) != 25 {
		t.Errorf("lens selector = %+v", snap.Stage.Lenses)
	}
	if len(snap.Stage.Cameras.Options) != 2 {
		t.Errorf("camera options = %+v, want the two cameras", snap.Stage.Cameras.Options)
	}
	if snap.Source == nil || snap.Source.DeviceID != "cam-a" || snap.Source.Transform != "mirror-x" {
		t.Errorf("source = %+v", snap.Source)
	}
}

func TestSelectCamera(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPut, "/api/booth/camera", map[string]string{"device_id": "cam-b"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := decode[booth.Snapshot](t, resp)
	if snap.Source == nil || snap.Source.DeviceID != "cam-b" {
		t.Errorf("source = %+v, want cam-b", snap.Source)
	}
	if live := h.platform.LiveStreams(); len(live) != 1 || live[0].DeviceID() != "cam-b" {
		t.Errorf("live streams = %d, want only cam-b", len(live))
	}

	resp = h.do(t, http.MethodPut, "/api/booth/camera", map[string]string{"device_id": "ghost"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown camera status = %d, want 404", resp.StatusCode)
	}

	resp = h.do(t, http.MethodPut, "/api/booth/camera", map[string]string{"device_id": ""})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty device_id status = %d, want 422", resp.StatusCode)
	}
}

func TestSelectCamera_CaptureUnavailable(t *testing.T) {
	h := newHarness(t)
	h.platform.FailAcquire(media.ErrDeviceBusy)

	resp := h.do(t, http.MethodPut, "/api/booth/camera", map[string]string{"device_id": "cam-b"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	// The booth keeps running, shows the failure and points the selector back
	// at the last good camera.
	snap := decode[booth.Snapshot](t, h.do(t, http.MethodGet, "/api/booth", nil))
	if st := snap.Status; st.Phase != booth.PhaseRunning || st.Code != booth.ErrCodeCaptureUnavailable ||
		st.Stage != booth.StageCapture || st.Error == "" {
		t.Errorf("status = %+v, want running with a capture error", st)
	}
	if sel := snap.Stage.Cameras.Selected; sel != "cam-a" || snap.LastGoodDevice != "cam-a" {
		t.Errorf("selected = %s, last good = %s, want cam-a", sel, snap.LastGoodDevice)
	}

	h.platform.FailAcquire(nil)
	resp = h.do(t, http.MethodPost, "/api/booth/retry", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d", resp.StatusCode)
	}
	snap = decode[booth.Snapshot](t, resp)
	if snap.Source == nil || snap.Source.DeviceID != "cam-a" {
		t.Errorf("source after retry = %+v, want cam-a", snap.Source)
	}
	if snap.Status.Code != "" || snap.Status.Error != "" {
		t.Errorf("status after retry = %+v, want the error cleared", snap.Status)
	}
}

func TestSelectLens(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPut, "/api/booth/lens", map[string]string{"lens_id": "l3"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := decode[booth.Snapshot](t, resp)
	if snap.Lens == nil || snap.Lens.ID != "l3" {
		t.Errorf("lens = %+v, want l3", snap.Lens)
	}

	resp = h.do(t, http.MethodPut, "/api/booth/lens", map[string]string{"lens_id": "ghost"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ghost lens status = %d, want 404", resp.StatusCode)
	}
	if lens := h.booth.Snapshot().Lens; lens == nil || lens.ID != "l3" {
		t.Errorf("lens after ghost = %+v, want l3 unchanged", lens)
	}
}

func TestDevicesAndLenses(t *testing.T) {
	h := newHarness(t)

	video := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/devices", nil))
	if video["count"] != float64(2) {
		t.Errorf("video count = %v, want 2", video["count"])
	}
	all := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/devices?kind=all", nil))
	if all["count"] != float64(3) {
		t.Errorf("all count = %v, want 3", all["count"])
	}
	resp := h.do(t, http.MethodGet, "/api/devices?kind=bogus", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad kind status = %d, want 422", resp.StatusCode)
	}

	lenses := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/lenses", nil))
	if lenses["count"] != float64(25) {
		t.Errorf("lens count = %v, want 25", lenses["count"])
	}
}

// stubBooth returns fixed errors for the mutating operations.
type stubBooth struct {
	err error
}

func (s stubBooth) Snapshot() booth.Snapshot                   { return booth.Snapshot{} }
func (s stubBooth) Phase() booth.Phase                         { return booth.PhaseFailed }
func (s stubBooth) SelectCamera(context.Context, string) error { return s.err }
func (s stubBooth) SelectLens(context.Context, string) error   { return s.err }
func (s stubBooth) Retry(context.Context) error                { return s.err }
func (s stubBooth) Lenses() []lenskit.Lens                     { return nil }
func (s stubBooth) Devices(context.Context, bool) ([]media.DeviceDescriptor, error) {
	return nil, s.err
}

func TestBoothErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not started", booth.ErrNotStarted, http.StatusConflict},
		{"superseded", booth.ErrSuperseded, http.StatusConflict},
		{"already started", booth.ErrAlreadyStarted, http.StatusConflict},
		{"unknown lens", fmt.Errorf("%w: x", booth.ErrUnknownLens), http.StatusNotFound},
		{"capture", &booth.Error{Code: booth.ErrCodeCaptureUnavailable, Stage: booth.StageCapture, Message: "acquire", Cause: media.ErrPermissionDenied}, http.StatusServiceUnavailable},
		{"runtime", &booth.Error{Code: booth.ErrCodeBootstrapFailed, Stage: booth.StageBootstrap, Message: "bootstrap", Cause: lenskit.ErrUnauthorized}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&Options{Booth: stubBooth{err: tt.err}, EventBus: events.New()})
			srv := httptest.NewServer(server.Handler())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/booth/retry", "application/json", nil)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestEventsStream(t *testing.T) {
	h := newHarness(t)

	auth := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPass))
	resp, err := http.Get(h.srv.URL + "/api/events?auth=" + auth)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitLine := func(want string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", want)
				}
				if strings.Contains(line, want) {
					return line
				}
			case <-timeout:
				t.Fatalf("timeout waiting for %q", want)
			}
		}
	}

	waitLine("event: booth-state")
	if line := waitLine("data:"); !strings.Contains(line, `"phase":"running"`) {
		t.Errorf("initial state = %s", line)
	}

	if err := h.booth.SelectLens(context.Background(), "l7"); err != nil {
		t.Fatal(err)
	}
	waitLine("event: lens-applied")
	if line := waitLine("data:"); !strings.Contains(line, `"lens_id":"l7"`) {
		t.Errorf("lens event = %s", line)
	}
}

func TestLogs(t *testing.T) {
	logging.Initialize(logging.Config{Level: "debug", Format: "text", BufferSize: 50})
	h := newHarness(t)

	logging.GetLogger("booth").Info("first booth line")
	logging.GetLogger("runtime").Warn("runtime warning")
	logging.GetLogger("booth").Error("second booth line")

	body := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/logs?module=booth&limit=1", nil))
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want 1", body["entries"])
	}
	if msg := entries[0].(map[string]any)["message"]; msg != "second booth line" {
		t.Errorf("message = %v, want the newest booth line", msg)
	}

	body = decode[map[string]any](t, h.do(t, http.MethodGet, "/api/logs?level=warn", nil))
	for _, e := range body["entries"].([]any) {
		if lvl := e.(map[string]any)["level"]; lvl != "warn" && lvl != "error" {
			t.Errorf("level filter let through %v", lvl)
		}
	}

	levels := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/logs/levels", nil))
	if m, ok := levels["levels"].(map[string]any); !ok || m["booth"] != "debug" {
		t.Errorf("levels = %v", levels)
	}
}

func TestFilterLogs(t *testing.T) {
	entries := []logging.LogEntry{
		{Seq: 1, Level: "debug", Module: "booth"},
		{Seq: 2, Level: "info", Module: "api"},
		{Seq: 3, Level: "warn", Module: "booth"},
		{Seq: 4, Level: "error", Module: "booth"},
	}

	got := filterLogs(entries, &models.LogsInput{Level: "info", Module: "booth", Limit: 5})
	if len(got) != 2 || got[0].Seq != 3 || got[1].Seq != 4 {
		t.Errorf("filtered = %+v", got)
	}
	got = filterLogs(entries, &models.LogsInput{Limit: 2})
	if len(got) != 2 || got[0].Seq != 3 {
		t.Errorf("limited = %+v", got)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "lensnode_") {
		t.Errorf("GET /metrics status = %d", resp.StatusCode)
	}

	body := decode[map[string]any](t, h.do(t, http.MethodGet, "/api/metrics/booth", nil))
	if body["phase"] != "running" {
		t.Errorf("metrics phase = %v", body["phase"])
	}
}

func TestCORSAndRequestID(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/booth", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", resp.StatusCode, resp.Header)
	}

	resp = h.do(t, http.MethodGet, "/api/booth", nil)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing generated request id")
	}

	req, _ = http.NewRequest(http.MethodGet, h.srv.URL+"/api/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want req-123", got)
	}
}

func TestBoothPage(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/kiosk"} {
		resp, err := http.Get(h.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "LensNode Booth") {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(h.srv.URL + "/api/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown api path = %d, want 404", resp.StatusCode)
	}
}
