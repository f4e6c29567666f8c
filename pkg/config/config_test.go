package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFlags builds a flag set mirroring the filed CLI flags used by Load.
func testFlags() *pflag.FlagSet {
	f := pflag.NewFlagSet("filed-test", pflag.ContinueOnError)
	f.Int("port", DefaultPort, "")
	f.String("bind", "0.0.0.0", "")
	f.Int("max-connections", 0, "")
	f.String("persist-dir", "~/.filed", "")
	f.String("store", "~/.filed-store", "")
	f.Bool("crash-write", false, "")
	f.Int("verbosity", DefaultVerbosity, "")
	f.Bool("dump-files", false, "")
	f.String("event-output", "stdout", "")
	f.String("log-level", "INFO", "")
	f.String("log-format", "text", "")
	f.Bool("metrics", false, "")
	f.Int("metrics-port", DefaultMetricsPort, "")
	return f
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "/srv/files", nil)
	require.NoError(t, err)

	assert.Equal(t, "/srv/files", cfg.MountPoint)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, DefaultVerbosity, cfg.EventLog.Verbosity)
	assert.False(t, cfg.EventLog.DumpFiles)
	assert.False(t, cfg.Persistence.CrashWrite)
	assert.False(t, cfg.Metrics.Enabled)

	// Home-relative defaults are expanded.
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".filed"), cfg.Persistence.Directory)
	assert.Equal(t, filepath.Join(home, ".filed-store"), cfg.Persistence.StorePath)
}

func TestLoadMissingMountPoint(t *testing.T) {
	_, err := Load("", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount point required")
}

func TestPortBoundaries(t *testing.T) {
	for _, port := range []int{0, 65535} {
		flags := testFlags()
		require.NoError(t, flags.Set("port", strconv.Itoa(port)))
		cfg, err := Load("", "/mnt", flags)
		require.NoError(t, err, "port %d must be accepted", port)
		assert.Equal(t, port, cfg.Server.Port)
	}

	for _, port := range []int{-1, 65536} {
		flags := testFlags()
		require.NoError(t, flags.Set("port", strconv.Itoa(port)))
		_, err := Load("", "/mnt", flags)
		require.Error(t, err, "port %d must be rejected", port)
		assert.Contains(t, err.Error(), "illegal port")
	}
}

func TestVerbosityBoundaries(t *testing.T) {
	for _, v := range []int{0, 4} {
		flags := testFlags()
		require.NoError(t, flags.Set("verbosity", strconv.Itoa(v)))
		cfg, err := Load("", "/mnt", flags)
		require.NoError(t, err, "verbosity %d must be accepted", v)
		assert.Equal(t, v, cfg.EventLog.Verbosity)
	}

	for _, v := range []int{-1, 5} {
		flags := testFlags()
		require.NoError(t, flags.Set("verbosity", strconv.Itoa(v)))
		_, err := Load("", "/mnt", flags)
		require.Error(t, err, "verbosity %d must be rejected", v)
		assert.Contains(t, err.Error(), "illegal verbosity")
	}
}

func TestValidationAccumulatesErrors(t *testing.T) {
	flags := testFlags()
	require.NoError(t, flags.Set("port", "70000"))
	require.NoError(t, flags.Set("verbosity", "9"))

	_, err := Load("", "/mnt", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal port")
	assert.Contains(t, err.Error(), "illegal verbosity")
}

func TestMountPointTrailingSlashTrimmed(t *testing.T) {
	cfg, err := Load("", "/srv/files/", nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/files", cfg.MountPoint)

	cfg, err = Load("", "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "/", cfg.MountPoint)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("FILED_SERVER_PORT", "12345")
	t.Setenv("FILED_EVENTLOG_DUMP_FILES", "true")

	cfg, err := Load("", "/mnt", nil)
	require.NoError(t, err)
	assert.Equal(t, 12345, cfg.Server.Port)
	assert.True(t, cfg.EventLog.DumpFiles)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  port: 1111\n"), 0644))

	flags := testFlags()
	require.NoError(t, flags.Set("port", "2222"))

	cfg, err := Load(cfgPath, "/mnt", flags)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Server.Port, "changed flags win over the config file")

	// Without the flag the file value applies.
	cfg, err = Load(cfgPath, "/mnt", testFlags())
	require.NoError(t, err)
	assert.Equal(t, 1111, cfg.Server.Port)
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteSample(path, false))

	// The sample itself loads cleanly.
	cfg, err := Load(path, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/files", cfg.MountPoint)

	// Refuses to overwrite without force.
	require.Error(t, WriteSample(path, false))
	require.NoError(t, WriteSample(path, true))
}
