// Package config loads and validates the filed configuration.
//
// Sources, in order of precedence:
//
//  1. CLI flags (highest)
//  2. Environment variables (FILED_*)
//  3. Configuration file (YAML)
//  4. Defaults (lowest)
//
// Validation accumulates every violation into one report so the operator
// sees all argument errors at once, not just the first.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full filed configuration.
type Config struct {
	// MountPoint is the local directory whose subtree is served. It is
	// the single positional CLI argument; trailing slashes are trimmed.
	MountPoint string `mapstructure:"mount_point" validate:"required" yaml:"mount_point"`

	// Server configures the TCP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Persistence configures the upload staging directory and WAL store.
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`

	// EventLog configures the per-request event log.
	EventLog EventLogConfig `mapstructure:"eventlog" yaml:"eventlog"`

	// Logging configures the process logger.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the admin HTTP endpoint (healthz, Prometheus
	// metrics, status).
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry configures OpenTelemetry tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig configures the TCP listener.
type ServerConfig struct {
	// BindAddress is the IP to bind. Empty or "0.0.0.0" binds all
	// interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the listen port. Port 0 asks the OS for an ephemeral port.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxConnections limits concurrent clients. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// PersistenceConfig configures the crash-consistency engine.
type PersistenceConfig struct {
	// Directory holds staging files while uploads are in flight. It must
	// not overlap the mount point. Created at startup if missing.
	Directory string `mapstructure:"directory" validate:"required" yaml:"directory"`

	// StorePath is the write-ahead log file.
	StorePath string `mapstructure:"store_path" validate:"required" yaml:"store_path"`

	// CrashWrite enables the crash-on-write test hook.
	CrashWrite bool `mapstructure:"crash_write" yaml:"crash_write"`
}

// EventLogConfig configures the per-request event log.
type EventLogConfig struct {
	// Verbosity is 0..4: fatal, error, info, debug, trace.
	Verbosity int `mapstructure:"verbosity" validate:"min=0,max=4" yaml:"verbosity"`

	// DumpFiles includes sanitized file content previews in events.
	DumpFiles bool `mapstructure:"dump_files" yaml:"dump_files"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the admin HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// flagBindings maps CLI flag names to configuration keys.
var flagBindings = map[string]string{
	"port":            "server.port",
	"bind":            "server.bind_address",
	"max-connections": "server.max_connections",
	"persist-dir":     "persistence.directory",
	"store":           "persistence.store_path",
	"crash-write":     "persistence.crash_write",
	"verbosity":       "eventlog.verbosity",
	"dump-files":      "eventlog.dump_files",
	"event-output":    "eventlog.output",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"metrics":         "metrics.enabled",
	"metrics-port":    "metrics.port",
}

// Load reads configuration from defaults, an optional config file,
// FILED_* environment variables, and the given flag set (nil to skip flag
// binding). mountPoint is the positional CLI argument; pass "" when it
// comes from the config file instead.
func Load(cfgFile, mountPoint string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FILED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for flagName, key := range flagBindings {
			if f := flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	if mountPoint != "" {
		v.Set("mount_point", mountPoint)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expands home-relative paths and trims trailing slashes off
// the mount point.
func (c *Config) normalize() {
	c.MountPoint = trimTrailingSlashes(c.MountPoint)
	c.Persistence.Directory = expandHome(c.Persistence.Directory)
	c.Persistence.StorePath = expandHome(c.Persistence.StorePath)
}

func trimTrailingSlashes(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" && strings.HasPrefix(path, "/") {
		return "/"
	}
	return trimmed
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// Validate checks the configuration and reports every violation at once.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, verr := range verrs {
		msgs = append(msgs, describeViolation(verr))
	}
	return errors.New(strings.Join(msgs, "\n"))
}

// describeViolation renders one validation error in operator terms.
func describeViolation(verr validator.FieldError) string {
	switch verr.StructNamespace() {
	case "Config.MountPoint":
		return "mount point required as first positional argument"
	case "Config.Server.Port":
		return "illegal port: must be in [0, 65535]"
	case "Config.EventLog.Verbosity":
		return "illegal verbosity: must be in [0, 4]"
	default:
		return fmt.Sprintf("invalid value for %s (%s)",
			strings.ToLower(verr.StructNamespace()), verr.Tag())
	}
}
