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

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskdisplay/deskdisplay-core/internal/telemetry"
	"github.com/deskdisplay/deskdisplay-core/pkg/assets"
	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers"
	"github.com/deskdisplay/deskdisplay-core/pkg/service"
	"github.com/deskdisplay/deskdisplay-core/pkg/ui/systray"
	"github.com/rs/zerolog/log"
)

// RunApp starts the display service and blocks until the user quits from
// the tray, a signal arrives, or the service stops by itself. In daemon
// mode there is no tray.
func RunApp(cfg *config.Instance, daemonMode bool) (returnErr error) {
	defer telemetry.Close()
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %v\n", r)
			log.Error().Msgf("panic recovered: %v", r)
			telemetry.Flush()
			returnErr = fmt.Errorf("panic: %v", r)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	svc, err := service.Start(cfg, service.Deps{WatchConfig: true})
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping service")
		}
	}()

	if daemonMode {
		log.Info().Msg("started in daemon mode")
		select {
		case <-sigs:
		case <-svc.Done():
			log.Info().Msg("service shut down internally")
		}
		return nil
	}

	go func() {
		select {
		case <-sigs:
		case <-svc.Done():
		}
		systray.Quit()
	}()

	logPath := helpers.LogPath(helpers.StateDir())
	systray.Run(cfg, svc, assets.TrayIcon(), logPath, func() {
		log.Info().Msg("tray closed")
	})
	return nil
}
