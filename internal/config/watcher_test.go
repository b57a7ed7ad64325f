package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lensnode/internal/logging"
)

type levelsConfig struct {
	Level   string            `toml:"level"`
	Modules map[string]string `toml:"modules"`
}

func loadLevels(path string) (levelsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return levelsConfig{}, err
	}
	var cfg levelsConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect returns a handler that never blocks the watch loop and a channel of what it saw.
func collect[T any]() (func(T), chan T) {
	ch := make(chan T, 16)
	return func(v T) {
		select {
		case ch <- v:
		default:
		}
	}, ch
}

// awaitReload waits for a reloaded value matching ok.
func awaitReload[T any](t *testing.T, ch chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timeout waiting for config reload")
		}
	}
}

func startWatcher[T any](t *testing.T, w *Watcher[T]) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")

	handler, received := collect[levelsConfig]()
	w := NewConfigWatcher(path, loadLevels, newTestLogger(), WithDebounce[levelsConfig](20*time.Millisecond))
	w.OnReload(handler)
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("level = \"debug\"\n[modules]\nbooth = \"warn\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := awaitReload(t, received, func(c levelsConfig) bool { return c.Level == "debug" })
	if cfg.Modules["booth"] != "warn" {
		t.Errorf("got %+v", cfg)
	}
}

func TestConfigWatcher_ReplacedByRename(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")

	handler, received := collect[levelsConfig]()
	w := NewConfigWatcher(path, loadLevels, newTestLogger(), WithDebounce[levelsConfig](20*time.Millisecond))
	w.OnReload(handler)
	startWatcher(t, w)

	tmp := filepath.Join(filepath.Dir(path), "config.toml.new")
	if err := os.WriteFile(tmp, []byte("level = \"error\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	awaitReload(t, received, func(c levelsConfig) bool { return c.Level == "error" })
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")

	var calls atomic.Int32
	w := NewConfigWatcher(path, loadLevels, newTestLogger(), WithDebounce[levelsConfig](20*time.Millisecond))
	w.OnReload(func(levelsConfig) { calls.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for unrelated file", n)
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")

	var calls atomic.Int32
	handler, received := collect[levelsConfig]()
	w := NewConfigWatcher(path, loadLevels, newTestLogger(), WithDebounce[levelsConfig](200*time.Millisecond))
	w.OnReload(func(cfg levelsConfig) {
		calls.Add(1)
		handler(cfg)
	})
	startWatcher(t, w)

	for _, level := range []string{"debug", "warn", "error"} {
		if err := os.WriteFile(path, []byte("level = \""+level+"\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	awaitReload(t, received, func(c levelsConfig) bool { return c.Level == "error" })
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")
	w := NewConfigWatcher(path, loadLevels, newTestLogger())

	var first, second atomic.Int32
	unsub := w.OnReload(func(levelsConfig) { first.Add(1) })
	w.OnReload(func(levelsConfig) { second.Add(1) })

	w.Reload()
	unsub()
	unsub()
	w.Reload()

	if first.Load() != 1 || second.Load() != 2 {
		t.Errorf("calls = %d/%d, want 1/2", first.Load(), second.Load())
	}
}

func TestConfigWatcher_HandlersShareSnapshotInOrder(t *testing.T) {
	path := writeConfig(t, "level = \"warn\"\n")
	w := NewConfigWatcher(path, loadLevels, newTestLogger())

	var order []string
	w.OnReload(func(cfg levelsConfig) { order = append(order, "a:"+cfg.Level) })
	w.OnReload(func(cfg levelsConfig) { order = append(order, "b:"+cfg.Level) })
	w.Reload()

	if len(order) != 2 || order[0] != "a:warn" || order[1] != "b:warn" {
		t.Errorf("order = %v", order)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeConfig(t, "level = [broken\n")

	var got error
	var called bool
	w := NewConfigWatcher(path, loadLevels, newTestLogger(),
		WithErrorHandler[levelsConfig](func(err error) { got = err }))
	w.OnReload(func(levelsConfig) { called = true })
	w.Reload()

	if got == nil {
		t.Fatal("error handler not called")
	}
	if called {
		t.Error("reload handler called despite load error")
	}

	missing := NewConfigWatcher(filepath.Join(t.TempDir(), "gone.toml"), loadLevels, newTestLogger(),
		WithErrorHandler[levelsConfig](func(err error) { got = err }))
	missing.Reload()
	if !errors.Is(got, os.ErrNotExist) {
		t.Errorf("error = %v, want not-exist", got)
	}
}

func TestConfigWatcher_StartTwiceAndStopTwice(t *testing.T) {
	path := writeConfig(t, "level = \"info\"\n")
	w := NewConfigWatcher(path, loadLevels, newTestLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestConfigWatcher_DrivesLoggingLevels(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")
	w := NewConfigWatcher(path, func(p string) (logging.Config, error) {
		return LoadLoggingConfig(p), nil
	}, newTestLogger(), WithDebounce[logging.Config](20*time.Millisecond))

	handler, received := collect[logging.Config]()
	w.OnReload(handler)
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n[logging.modules]\nruntime = \"error\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := awaitReload(t, received, func(c logging.Config) bool { return c.Level == "debug" })
	if cfg.Modules["runtime"] != "error" {
		t.Errorf("cfg = %+v", cfg)
	}
}
