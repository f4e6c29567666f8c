package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/internal/telemetry"
	"github.com/marmos91/filed/pkg/adapter"
	"github.com/marmos91/filed/pkg/api"
	"github.com/marmos91/filed/pkg/config"
	"github.com/marmos91/filed/pkg/eventlog"
	"github.com/marmos91/filed/pkg/fileservice"
	"github.com/marmos91/filed/pkg/persist"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	// -V wins over -q, -q wins over -L.
	if !flags.Changed("verbosity") {
		if quiet, _ := flags.GetBool("quiet"); quiet {
			_ = flags.Set("verbosity", "0")
		} else if loud, _ := flags.GetBool("trace"); loud {
			_ = flags.Set("verbosity", "4")
		}
	}

	mountPoint := ""
	if len(args) > 0 {
		mountPoint = args[0]
	}
	cfg, err := config.Load(cfgFile, mountPoint, flags)
	if err != nil {
		return err
	}
	if overlaps(cfg.Persistence.Directory, cfg.MountPoint) {
		return fmt.Errorf("persistent directory %s overlaps the mount point %s",
			cfg.Persistence.Directory, cfg.MountPoint)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "filed",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	sink, closeSink, err := openEventSink(cfg.EventLog.Output)
	if err != nil {
		return err
	}
	defer closeSink()

	level, ok := eventlog.ToVerbosity(cfg.EventLog.Verbosity)
	if !ok {
		return fmt.Errorf("illegal verbosity: must be in [0, 4]")
	}
	events := eventlog.New(sink, level, cfg.EventLog.DumpFiles)

	logger.Info("configuration loaded",
		"mount_point", cfg.MountPoint,
		"verbosity", level.String(),
		"persist_dir", cfg.Persistence.Directory,
		"store", cfg.Persistence.StorePath)
	if cfg.Persistence.CrashWrite {
		logger.Warn("crash-on-write test hook is enabled")
	}

	// Recovery must finish before the listener opens; a failure here
	// aborts startup.
	engine := persist.New(cfg.Persistence.Directory, cfg.Persistence.StorePath, events)
	if err := engine.Recover(); err != nil {
		return fmt.Errorf("recover persistent state: %w", err)
	}
	defer func() { _ = engine.Close() }()

	svc := fileservice.New(fileservice.Config{
		MountPoint: cfg.MountPoint,
		Engine:     engine,
		Events:     events,
		CrashWrite: cfg.Persistence.CrashWrite,
	})

	srv := adapter.NewServer(adapter.Config{
		BindAddress:     cfg.Server.BindAddress,
		Port:            cfg.Server.Port,
		MaxConnections:  cfg.Server.MaxConnections,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, svc)

	if cfg.Metrics.Enabled {
		adminSrv := api.NewServer(api.Config{
			Port:       cfg.Metrics.Port,
			Version:    Version,
			MountPoint: cfg.MountPoint,
			Source:     srv,
		})
		go func() {
			if err := adminSrv.Serve(ctx); err != nil {
				logger.Error("admin endpoint error", "error", err)
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()
	go func() {
		// Addr blocks until the listener is up.
		events.StartupEvent(cfg.MountPoint, srv.Addr())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")
	}
	return nil
}

// openEventSink resolves the event log output setting to a writer.
func openEventSink(output string) (io.Writer, func(), error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open event log file %q: %w", output, err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}

// overlaps reports whether the persistent directory sits inside the mount
// point (or vice versa); staged files must never be visible to clients.
func overlaps(persistDir, mountPoint string) bool {
	if persistDir == "" || mountPoint == "" {
		return false
	}
	p := strings.TrimRight(persistDir, "/") + "/"
	m := strings.TrimRight(mountPoint, "/") + "/"
	return strings.HasPrefix(p, m) || strings.HasPrefix(m, p)
}
