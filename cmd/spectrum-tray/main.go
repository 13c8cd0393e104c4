package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/spectrum-tray/internal/backend"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/petems/spectrum-tray/internal/logging"
	"github.com/petems/spectrum-tray/internal/monitor"
	"github.com/petems/spectrum-tray/internal/permissions"
	"github.com/petems/spectrum-tray/internal/tray"
	"github.com/spf13/pflag"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	cfgFile := pflag.String("config", "", "config file (default is the platform config dir)")
	pflag.Parse()

	// Load config from XDG/Library/AppData
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.Path()).Msg("Invalid config")
	}

	// macOS requires explicit audio capture approval before loopback inputs deliver data
	if err := permissions.EnsurePermissions(log); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys, err := backend.Open(backend.Options{
		Name:    cfg.Backend,
		WAVPath: cfg.Audio.WAVPath,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer sys.Close()

	ctrl := monitor.New(monitor.Options{
		System:    sys,
		ChunkSize: cfg.Audio.ChunkSize,
		Format:    cfg.Format(),
		Spectrum:  cfg.SpectrumOptions(),
		Logger:    log,
	})
	ctrl.SetDevice(cfg.Audio.DeviceID)
	defer ctrl.Close()

	trayUI := tray.New(ctrl, cfg, log, Version, Commit)

	log.Info().Str("backend", sys.Name()).Msg("SpectrumTray starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}
