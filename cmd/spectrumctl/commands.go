package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/backend"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/petems/spectrum-tray/internal/logging"
	"github.com/petems/spectrum-tray/internal/monitor"
	"github.com/petems/spectrum-tray/internal/permissions"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type cli struct {
	out io.Writer

	cfgFile     string
	backendName string
	logLevel    string

	// Hooks replaced in tests.
	newLogger  func(level string) zerolog.Logger
	openSystem func(cfg *config.Config, log zerolog.Logger) (audio.System, error)
	terminal   bool
}

func newCLI(out io.Writer) *cli {
	terminal := false
	if f, ok := out.(*os.File); ok {
		terminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &cli{
		out:       out,
		newLogger: logging.NewWithLevel,
		openSystem: func(cfg *config.Config, log zerolog.Logger) (audio.System, error) {
			if err := permissions.EnsurePermissions(log); err != nil {
				return nil, err
			}
			return backend.Open(backend.Options{
				Name:    cfg.Backend,
				WAVPath: cfg.Audio.WAVPath,
				Logger:  log,
			})
		},
		terminal: terminal,
	}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "spectrumctl",
		Short:         "Inspect output devices and their live spectrum",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is the platform config dir)")
	root.PersistentFlags().StringVar(&c.backendName, "backend", "", fmt.Sprintf("audio backend %v", backend.Names()))
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(c.devicesCmd(), c.defaultDeviceCmd(), c.watchCmd(), c.snapshotCmd())
	return root
}

// session holds what every command needs; close releases it.
type session struct {
	cfg *config.Config
	log zerolog.Logger
	sys audio.System
}

func (s *session) close() {
	if err := s.sys.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close audio backend")
	}
}

func (c *cli) setup() (*session, error) {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return nil, err
	}
	if c.backendName != "" {
		cfg.Backend = c.backendName
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := c.newLogger(cfg.LogLevel)
	sys, err := c.openSystem(cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, sys: sys}, nil
}

func (s *session) controller(deviceID string, bands int) *monitor.Controller {
	opts := s.cfg.SpectrumOptions()
	if bands > 0 {
		opts.Bands = bands
	}
	ctrl := monitor.New(monitor.Options{
		System:    s.sys,
		ChunkSize: s.cfg.Audio.ChunkSize,
		Format:    s.cfg.Format(),
		Spectrum:  opts,
		Logger:    s.log,
	})
	if deviceID == "" {
		deviceID = s.cfg.Audio.DeviceID
	}
	ctrl.SetDevice(deviceID)
	return ctrl
}

func (c *cli) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List output devices (* marks the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.setup()
			if err != nil {
				return err
			}
			defer s.close()

			devices, err := s.sys.OutputDevices()
			if err != nil {
				return err
			}
			return writeDevices(c.out, devices)
		},
	}
}

func writeDevices(out io.Writer, devices []audio.Device) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tRATE\tSTATE")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		rate := "-"
		if d.SampleRate > 0 {
			rate = fmt.Sprintf("%dHz", d.SampleRate)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, d.ID, d.Name, rate, d.State)
	}
	return tw.Flush()
}

func (c *cli) defaultDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default-device",
		Short: "Print the default output device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.setup()
			if err != nil {
				return err
			}
			defer s.close()

			d, err := s.sys.DefaultOutputDevice()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s\t%s\n", d.ID, d.Name)
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		bands    int
		interval time.Duration
		device   string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Draw the live spectrum as bars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.setup()
			if err != nil {
				return err
			}
			defer s.close()

			ctrl := s.controller(device, bands)
			defer ctrl.Close()
			if err := ctrl.Start(0); err != nil {
				return err
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return c.watch(ctx, ctrl, ctrl.SpectrumOptions().Bands, interval)
		},
	}
	cmd.Flags().IntVar(&bands, "bands", 0, "number of bands (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "redraw interval")
	cmd.Flags().StringVar(&device, "device", "", "device id (default from config, then system default)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func (c *cli) watch(ctx context.Context, ctrl *monitor.Controller, bands int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	width := min(bands, 80)
	for {
		select {
		case <-ctx.Done():
			if c.terminal {
				fmt.Fprintln(c.out)
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := ctrl.Err(); err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
			line := barsLine(ctrl.Spectrum(bands), width)
			if c.terminal {
				fmt.Fprintf(c.out, "\r%s", line)
			} else {
				fmt.Fprintln(c.out, line)
			}
		}
	}
}

func (c *cli) snapshotCmd() *cobra.Command {
	var (
		bands  int
		device string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture briefly and print the spectrum as a JSON array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.setup()
			if err != nil {
				return err
			}
			defer s.close()

			ctrl := s.controller(device, bands)
			defer ctrl.Close()
			if err := ctrl.Start(0); err != nil {
				return err
			}

			if err := waitForData(cmd.Context(), ctrl, wait); err != nil {
				return err
			}
			values := ctrl.Spectrum(ctrl.SpectrumOptions().Bands)
			return json.NewEncoder(c.out).Encode(values)
		},
	}
	cmd.Flags().IntVar(&bands, "bands", 0, "number of bands (default from config)")
	cmd.Flags().StringVar(&device, "device", "", "device id (default from config, then system default)")
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "how long to capture before sampling")
	return cmd
}

// waitForData waits out the capture window, returning early on failure.
// The spectrum is all zeros if no chunk arrived in time.
func waitForData(ctx context.Context, ctrl *monitor.Controller, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-poll.C:
			if err := ctrl.Err(); err != nil {
				return fmt.Errorf("capture failed: %w", err)
			}
		}
	}
}

// barsLine scales to the loudest band when values exceed 1 (raw mode).
func barsLine(values []float64, width int) string {
	full := 1.0
	for _, v := range values {
		full = max(full, v)
	}
	return spectrum.Bars(values, width, full)
}
