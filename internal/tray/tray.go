package tray

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/petems/spectrum-tray/internal/logging"
	"github.com/petems/spectrum-tray/internal/monitor"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

// titleWidth is the number of glyphs in the tray level bar.
const titleWidth = 8

type UI struct {
	ctrl    *monitor.Controller
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}

	// Menu items
	mStartStop    *systray.MenuItem
	mDevices      *systray.MenuItem
	mSmoothed     *systray.MenuItem
	mRaw          *systray.MenuItem
	mCopyID       *systray.MenuItem
	mCopySpectrum *systray.MenuItem
}

func New(ctrl *monitor.Controller, cfg *config.Config, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		ctrl:    ctrl,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
		stop:    make(chan struct{}),
	}
}

// Run blocks on the systray event loop until Quit is chosen or ctx ends.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			systray.Quit()
		case <-u.stop:
		}
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTitle(statusTitle(false, nil, nil))
	systray.SetTooltip("Output audio spectrum")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Monitoring", "Capture the selected output device")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Output Device", "Select output device")
	u.buildDeviceMenu()

	mMode := systray.AddMenuItem("Mode", "Spectrum post-processing")
	smoothed := u.ctrl.SpectrumOptions().Mode == spectrum.Smoothed
	u.mSmoothed = mMode.AddSubMenuItemCheckbox("Smoothed", "Weighted with decay", smoothed)
	u.mRaw = mMode.AddSubMenuItemCheckbox("Raw", "Log band averages", !smoothed)

	systray.AddSeparator()
	u.mCopyID = systray.AddMenuItem("Copy Device ID", "Copy the captured device id")
	u.mCopySpectrum = systray.AddMenuItem("Copy Spectrum", "Copy the current spectrum as JSON")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About SpectrumTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.refresh()
	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggleMonitoring()
		case <-u.mSmoothed.ClickedCh:
			u.setMode(spectrum.Smoothed)
		case <-u.mRaw.ClickedCh:
			u.setMode(spectrum.Raw)
		case <-u.mCopyID.ClickedCh:
			u.copyDeviceID()
		case <-u.mCopySpectrum.ClickedCh:
			u.copySpectrum()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		case <-u.stop:
			return
		}
	}
}

// refresh redraws the level bar until the UI exits.
func (u *UI) refresh() {
	ticker := time.NewTicker(u.cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-u.stop:
			return
		case <-ticker.C:
			var levels []float64
			running := u.ctrl.Running()
			if running {
				levels = u.ctrl.Spectrum(u.cfg.Spectrum.Bands)
			}
			systray.SetTitle(statusTitle(running, u.ctrl.Err(), levels))
		}
	}
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.ctrl.Devices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list output devices")
		return
	}

	var mu sync.Mutex
	deviceItems := make(map[string]*systray.MenuItem)
	selected := u.cfg.Audio.DeviceID

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItemCheckbox(dev.Name, dev.ID, dev.ID == selected || (selected == "" && dev.Default))
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				select {
				case <-u.stop:
					return
				case <-menuItem.ClickedCh:
				}
				mu.Lock()
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				mu.Unlock()
				u.selectDevice(deviceID, deviceName)
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) selectDevice(id, name string) {
	u.cfg.Audio.DeviceID = id
	if err := u.cfg.Save(); err != nil {
		u.log.Warn().Err(err).Msg("Failed to save config")
	}
	u.log.Info().Str("device", name).Str("device_id", id).Msg("Changed output device")

	wasRunning := u.ctrl.Running()
	u.ctrl.SetDevice(id)
	if wasRunning {
		u.startMonitoring()
	}
}

func (u *UI) toggleMonitoring() {
	if u.ctrl.Running() {
		u.ctrl.Stop()
		u.mStartStop.SetTitle("Start Monitoring")
		systray.SetTitle(statusTitle(false, nil, nil))
		u.log.Info().Msg("Monitoring stopped")
		return
	}
	u.startMonitoring()
}

func (u *UI) startMonitoring() {
	if err := u.ctrl.Start(u.cfg.Audio.ChunkSize); err != nil {
		u.log.Error().Err(err).Msg("Failed to start monitoring")
		systray.SetTitle(statusTitle(false, err, nil))
		return
	}
	u.mStartStop.SetTitle("Stop Monitoring")
	u.log.Info().Str("device_id", u.ctrl.CurrentDeviceID()).Msg("Monitoring started")
}

func (u *UI) setMode(m spectrum.Mode) {
	u.ctrl.SetMode(m)
	if m == spectrum.Smoothed {
		u.mSmoothed.Check()
		u.mRaw.Uncheck()
	} else {
		u.mRaw.Check()
		u.mSmoothed.Uncheck()
	}
	u.cfg.Spectrum.Mode = m.String()
	if err := u.cfg.Save(); err != nil {
		u.log.Warn().Err(err).Msg("Failed to save config")
	}
	u.log.Info().Str("mode", m.String()).Msg("Changed spectrum mode")
}

func (u *UI) copyDeviceID() {
	id := u.ctrl.CurrentDeviceID()
	if id == "" {
		if dev, err := u.ctrl.DefaultDevice(); err == nil {
			id = dev.ID
		}
	}
	if id == "" {
		u.log.Warn().Msg("No device id to copy")
		return
	}
	if err := clipboard.WriteAll(id); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy device id")
		return
	}
	u.log.Info().Str("device_id", id).Msg("Copied device id")
}

func (u *UI) copySpectrum() {
	text, err := spectrumJSON(u.ctrl.Spectrum(u.cfg.Spectrum.Bands))
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to encode spectrum")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy spectrum")
		return
	}
	u.log.Info().Int("bands", u.cfg.Spectrum.Bands).Msg("Copied spectrum")
}

func (u *UI) openLogs() {
	name, args := openCommand(runtime.GOOS, logging.Path())
	if err := exec.Command(name, args...).Start(); err != nil {
		u.log.Error().Err(err).Str("path", logging.Path()).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	fmt.Printf("SpectrumTray %s (%s)\nOutput audio spectrum monitor\n", u.version, u.commit)
}

func (u *UI) onExit() {
	u.stopOnce.Do(func() { close(u.stop) })
	if err := u.ctrl.Close(); err != nil {
		u.log.Warn().Err(err).Msg("Failed to stop monitoring")
	}
}

// statusTitle is the tray title: a level bar while capturing, a pause mark
// when stopped, and a warning when capture failed.
func statusTitle(running bool, err error, levels []float64) string {
	switch {
	case err != nil:
		return "🎵 ⚠️"
	case !running:
		return "🎵 ⏸"
	case len(levels) == 0:
		return "🎵 " + spectrum.Bars(make([]float64, titleWidth), titleWidth, 1)
	default:
		return "🎵 " + spectrum.Bars(levels, titleWidth, 1)
	}
}

func spectrumJSON(values []float64) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// openCommand returns the program that opens path with the default app.
func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}
