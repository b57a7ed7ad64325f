// Package logging provides module-scoped slog loggers with per-module levels.
//
// Call Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"booth":   "debug",
//			"runtime": "warn",
//		},
//	})
//
//	logger := logging.GetLogger("booth")
//	logger.Info("Source bound", "device_id", id)
//
// Loggers may be created before Initialize (package-level vars do this); they
// log at info to stdout until Initialize swaps in the configured handlers.
//
// Records go to stdout when it is a terminal, pipe or file, to the systemd
// journal when journald is reachable, and always to an in-memory ring buffer
// served by GET /api/logs:
//
//	journalctl -t lensnode -f
//	journalctl -t lensnode MODULE=booth -p warning
//
// Levels can be changed at runtime with SetLevels; lensnode does this when the
// [logging] section of the config file changes:
//
//	[logging]
//	level = "info"
//	format = "text"
//	buffer_size = 1000
//
//	[logging.modules]
//	booth = "debug"
//	http = "warn"
package logging
