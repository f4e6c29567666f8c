package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Built-in defaults. The persistent directory and store default under the
// operator's home directory so a bare `filed /srv/files` works.
const (
	DefaultPort            = 61512
	DefaultVerbosity       = 2 // info
	DefaultMetricsPort     = 9090
	defaultPersistDir      = "~/.filed"
	defaultStorePath       = "~/.filed-store"
	defaultShutdownTimeout = 10 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("persistence.directory", defaultPersistDir)
	v.SetDefault("persistence.store_path", defaultStorePath)
	v.SetDefault("persistence.crash_write", false)

	v.SetDefault("eventlog.verbosity", DefaultVerbosity)
	v.SetDefault("eventlog.dump_files", false)
	v.SetDefault("eventlog.output", "stdout")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", DefaultMetricsPort)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// Default returns a Config populated with the built-in defaults and the
// given mount point.
func Default(mountPoint string) *Config {
	return &Config{
		MountPoint: trimTrailingSlashes(mountPoint),
		Server: ServerConfig{
			BindAddress:     "0.0.0.0",
			Port:            DefaultPort,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Persistence: PersistenceConfig{
			Directory: expandHome(defaultPersistDir),
			StorePath: expandHome(defaultStorePath),
		},
		EventLog: EventLogConfig{
			Verbosity: DefaultVerbosity,
			Output:    "stdout",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Port: DefaultMetricsPort,
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

const sampleHeader = `# filed configuration.
#
# Every key can be overridden with a FILED_* environment variable
# (FILED_SERVER_PORT, FILED_EVENTLOG_VERBOSITY, ...) or a CLI flag.
`

// DefaultConfigPath returns $XDG_CONFIG_HOME/filed/config.yaml, falling
// back to ~/.config/filed/config.yaml.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "filed", "config.yaml")
}

// WriteSample writes a commented sample configuration to path. It refuses
// to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	sample := Default("/srv/files")
	sample.Persistence.Directory = defaultPersistDir
	sample.Persistence.StorePath = defaultStorePath

	body, err := yaml.Marshal(sample)
	if err != nil {
		return fmt.Errorf("render sample config: %w", err)
	}
	return os.WriteFile(path, append([]byte(sampleHeader), body...), 0644)
}
