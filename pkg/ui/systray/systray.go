// DeskDisplay Core
// Copyright (c) 2026 The DeskDisplay Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of DeskDisplay Core.
//
// DeskDisplay Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DeskDisplay Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DeskDisplay Core.  If not, see <http://www.gnu.org/licenses/>.

// Package systray shows the service state in the system tray and lets the
// user pause the display, open the config and log, and quit.
package systray

import (
	"fmt"
	"runtime"
	"time"

	"fyne.io/systray"
	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers"
	"github.com/deskdisplay/deskdisplay-core/pkg/service"
	"github.com/nixinwang/dialog"
	"github.com/rs/zerolog/log"
	"golang.design/x/clipboard"
)

const (
	appTitle        = "DeskDisplay"
	refreshInterval = 2 * time.Second
)

// Controller is the part of the service the tray drives.
type Controller interface {
	Status() service.Status
	Running() bool
	Pause()
	Resume() error
}

func statusLabel(st service.Status) string {
	switch {
	case st.State == service.StateStopped:
		return "Display: paused"
	case st.State == service.StateStopRequested:
		return "Display: pausing..."
	case !st.Connected:
		return "Display: waiting for device"
	case st.Transferring:
		return fmt.Sprintf("Display: %s (sending art)", st.Device)
	default:
		return "Display: " + st.Device
	}
}

func toggleLabel(running bool) string {
	if running {
		return "Pause Display"
	}
	return "Resume Display"
}

func aboutText(year int) string {
	return fmt.Sprintf("DeskDisplay Core\n"+
		"Version v%s\n\n"+
		"© %d DeskDisplay Contributors\n"+
		"License: GPLv3", config.AppVersion, year)
}

func onReady(cfg *config.Instance, svc Controller, icon []byte, logPath string) func() {
	return func() {
		systray.SetIcon(icon)
		if runtime.GOOS != "darwin" {
			systray.SetTitle(appTitle)
		}
		systray.SetTooltip(appTitle + " v" + config.AppVersion)

		mStatus := systray.AddMenuItem(statusLabel(svc.Status()), "Copy the device path")
		mToggle := systray.AddMenuItem(toggleLabel(svc.Running()), "Pause or resume sending to the display")
		systray.AddSeparator()

		mEditConfig := systray.AddMenuItem("Edit Config", "Edit config file")
		mOpenLog := systray.AddMenuItem("View Log", "View log file")

		systray.AddSeparator()
		mVersion := systray.AddMenuItem("Version "+config.AppVersion, "")
		mVersion.Disable()
		mAbout := systray.AddMenuItem("About DeskDisplay", "")

		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "Stop the display service and quit")

		refresh := time.NewTicker(refreshInterval)

		go func() {
			defer refresh.Stop()
			for {
				select {
				case <-refresh.C:
					mStatus.SetTitle(statusLabel(svc.Status()))
					mToggle.SetTitle(toggleLabel(svc.Running()))
				case <-mStatus.ClickedCh:
					copyDevice(svc.Status().Device)
				case <-mToggle.ClickedCh:
					if svc.Running() {
						svc.Pause()
					} else if err := svc.Resume(); err != nil {
						log.Error().Err(err).Msg("failed to resume display")
					}
					mToggle.SetTitle(toggleLabel(svc.Running()))
					mStatus.SetTitle(statusLabel(svc.Status()))
				case <-mEditConfig.ClickedCh:
					if err := helpers.OpenPath(cfg.Path()); err != nil {
						log.Error().Err(err).Msg("failed to open config file")
					}
				case <-mOpenLog.ClickedCh:
					if err := helpers.OpenPath(logPath); err != nil {
						log.Error().Err(err).Msg("failed to open log file")
					}
				case <-mAbout.ClickedCh:
					dialog.Message("%s", aboutText(time.Now().Year())).Title("About DeskDisplay").Info()
				case <-mQuit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()
	}
}

func copyDevice(device string) {
	if device == "" {
		return
	}
	if err := clipboard.Init(); err != nil {
		log.Error().Err(err).Msg("failed to initialize clipboard")
		return
	}
	clipboard.Write(clipboard.FmtText, []byte(device))
}

// Run blocks on the tray event loop until Quit is chosen or Quit is called
// from elsewhere, then runs exit.
func Run(cfg *config.Instance, svc Controller, icon []byte, logPath string, exit func()) {
	systray.Run(onReady(cfg, svc, icon, logPath), exit)
}

// Quit ends a running tray loop.
func Quit() {
	systray.Quit()
}
