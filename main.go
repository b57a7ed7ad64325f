package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/lensnode/cmd"
	"github.com/smazurov/lensnode/internal/api"
	"github.com/smazurov/lensnode/internal/booth"
	"github.com/smazurov/lensnode/internal/config"
	"github.com/smazurov/lensnode/internal/events"
	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/lenskit/remote"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/smazurov/lensnode/internal/media"
	"github.com/smazurov/lensnode/internal/metrics"
	"github.com/smazurov/lensnode/internal/version"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Booth settings
	APIToken         string `help:"Rendering runtime API token (required)" toml:"booth.api_token" env:"API_TOKEN"`
	LensGroupID      string `help:"Lens group to load (required)" toml:"booth.lens_group_id" env:"LENS_GROUP_ID"`
	DefaultLensID    string `help:"Lens applied at startup, wins over the index" toml:"booth.default_lens_id" env:"DEFAULT_LENS_ID"`
	DefaultLensIndex int    `help:"Catalog index applied at startup (negative disables)" default:"19" toml:"booth.default_lens_index" env:"DEFAULT_LENS_INDEX"`
	StartupTimeout   string `help:"Bound on the startup sequence" default:"30s" toml:"booth.startup_timeout" env:"STARTUP_TIMEOUT"`

	// Rendering runtime settings
	RuntimeBaseURL  string `help:"Rendering runtime base URL" default:"http://127.0.0.1:8700" toml:"runtime.base_url" env:"RUNTIME_BASE_URL"`
	RuntimeRetryMax int    `help:"Retries for idempotent runtime calls" default:"3" toml:"runtime.retry_max" env:"RUNTIME_RETRY_MAX"`

	// Devices settings
	DevicesHotplug bool `help:"Refresh the camera list when video nodes change" default:"true" toml:"devices.hotplug" env:"DEVICES_HOTPLUG"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings. Empty module levels inherit the global level.
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBooth   string `help:"Booth logging level" toml:"logging.booth" env:"LOGGING_BOOTH"`
	LoggingMedia   string `help:"Media devices logging level" toml:"logging.media" env:"LOGGING_MEDIA"`
	LoggingRuntime string `help:"Rendering runtime logging level" toml:"logging.runtime" env:"LOGGING_RUNTIME"`
	LoggingAPI     string `help:"API logging level" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP access logging level" toml:"logging.http" env:"LOGGING_HTTP"`
}

// Validate reports every missing or malformed setting the server needs.
func (o *Options) Validate() error {
	var errs []error
	if o.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}
	if o.LensGroupID == "" {
		errs = append(errs, errors.New("LENS_GROUP_ID is required"))
	}
	if _, err := time.ParseDuration(o.StartupTimeout); err != nil {
		errs = append(errs, fmt.Errorf("invalid startup timeout %q: %w", o.StartupTimeout, err))
	}
	if o.RuntimeBaseURL == "" {
		errs = append(errs, errors.New("runtime base URL is required"))
	}
	return errors.Join(errs...)
}

func (o *Options) boothConfig() booth.Config {
	timeout, _ := time.ParseDuration(o.StartupTimeout)
	return booth.Config{
		APIToken:         o.APIToken,
		LensGroupID:      o.LensGroupID,
		DefaultLensID:    o.DefaultLensID,
		DefaultLensIndex: o.DefaultLensIndex,
		StartupTimeout:   timeout,
	}
}

func (o *Options) loggingConfig() logging.Config {
	cfg := config.LoadLoggingConfig(o.Config)
	cfg.Level = o.LoggingLevel
	cfg.Format = o.LoggingFormat
	for module, level := range map[string]string{
		"booth":   o.LoggingBooth,
		"media":   o.LoggingMedia,
		"runtime": o.LoggingRuntime,
		"api":     o.LoggingAPI,
		"http":    o.LoggingHTTP,
	} {
		if level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryEvent(entry))
		})

		platform := media.NewV4L2Platform()
		client := remote.NewClient(opts.RuntimeBaseURL, remote.WithRetryMax(opts.RuntimeRetryMax))
		b := booth.New(opts.boothConfig(), platform, client, booth.WithEventBus(eventBus))

		server := api.NewServer(&api.Options{
			AuthUsername:   opts.AuthUsername,
			AuthPassword:   opts.AuthPassword,
			Booth:          b,
			EventBus:       eventBus,
			MetricsHandler: metrics.HTTPHandler(),
		})

		var deviceWatcher *media.DeviceWatcher
		if opts.DevicesHotplug {
			deviceWatcher = media.NewDeviceWatcher(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := b.RefreshDevices(ctx); err != nil && !errors.Is(err, booth.ErrNotStarted) {
					logger.Warn("Failed to refresh devices after hotplug", "error", err)
				}
			}, logging.GetLogger("media"))
		}

		configWatcher := config.NewConfigWatcher(opts.Config, func(path string) (logging.Config, error) {
			return config.LoadLoggingConfig(path), nil
		}, logger)
		configWatcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
		})

		watchCtx, cancelWatch := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if err := opts.Validate(); err != nil {
				logger.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}

			if deviceWatcher != nil {
				if err := deviceWatcher.Start(watchCtx); err != nil {
					logger.Warn("Device hotplug disabled", "error", err)
				}
			}
			if err := configWatcher.Start(watchCtx); err != nil {
				logger.Warn("Config reload disabled", "error", err)
			}

			// Startup failures stay visible through the API so the kiosk can retry.
			go func() {
				if err := b.Start(watchCtx); err != nil {
					logger.Error("Booth failed to start", "error", err)
				}
			}()

			logger.Info("Starting HTTP server", "port", opts.Port, "version", version.String())
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Stop(ctx); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
			if err := b.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down booth", "error", err)
			}

			cancelWatch()
			if deviceWatcher != nil {
				_ = deviceWatcher.Stop()
			}
			_ = configWatcher.Stop()
		})
	})

	cli.Root().Use = "lensnode"
	cli.Root().Short = "Camera booth with real-time lenses"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateDevicesCmd(media.NewV4L2Platform()))
	cli.Root().AddCommand(cmd.CreateLensesCmd(func(baseURL string) lenskit.Bootstrapper {
		return remote.NewClient(baseURL)
	}))
	cli.Root().AddCommand(&cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			doc, err := json.MarshalIndent(api.NewServer(&api.Options{}).API().OpenAPI(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.OutOrStdout(), string(doc))
			return err
		},
	})

	cli.Run()
}
