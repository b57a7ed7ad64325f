package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Config is the [logging] section of the config file.
type Config struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	BufferSize int               `toml:"buffer_size"`
	Modules    map[string]string `toml:"modules"`
}

var (
	mutex         sync.RWMutex
	current       Config
	isInitialized bool
	loggers       = make(map[string]*slog.Logger)
	levels        = make(map[string]*slog.LevelVar)
	rootLevel     = &slog.LevelVar{}
	buffer        *RingBuffer
	callback      LogCallback
)

// Initialize configures output format, levels and the in-memory log buffer.
// Loggers handed out earlier keep working and pick up the new handlers.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = config
	isInitialized = true

	size := config.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	buffer = NewRingBuffer(size)

	rootLevel.Set(levelOrDefault(config.Level, slog.LevelInfo))
	for module, lv := range levels {
		lv.Set(moduleLevel(config, module))
		loggers[module] = slog.New(createHandler(config.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, rootLevel)))
}

// SetLevels applies new global and per-module levels without rebuilding handlers.
// Used when the config file changes at runtime.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	current.Level = level
	current.Modules = modules
	rootLevel.Set(levelOrDefault(level, slog.LevelInfo))
	for module, lv := range levels {
		lv.Set(moduleLevel(current, module))
	}
}

// Levels reports the effective level of every module logger created so far.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()

	out := make(map[string]string, len(levels))
	for module, lv := range levels {
		out[module] = levelToString(lv.Level())
	}
	return out
}

// GetBuffer returns the log history buffer, or nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return buffer
}

// SetLogCallback registers a function called for every buffered entry.
// The API uses it to forward logs to SSE clients without importing events here.
func SetLogCallback(cb LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	callback = cb
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := loggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		lv.Set(moduleLevel(current, module))
		format = current.Format
	} else {
		lv.Set(slog.LevelInfo)
	}

	logger = slog.New(createHandler(format, lv)).With("module", module)
	loggers[module] = logger
	levels[module] = lv
	return logger
}

func moduleLevel(config Config, module string) slog.Level {
	level := levelOrDefault(config.Level, slog.LevelInfo)
	if s, ok := config.Modules[module]; ok {
		level = levelOrDefault(s, level)
	}
	return level
}

// createHandler fans out to stdout, the journal (when present) and the buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable is false when stdout is /dev/null, as under systemd with StandardOutput=null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(s string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return fallback
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
