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

// Package cli holds the flags and startup sequence shared by every
// platform entry point.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/deskdisplay/deskdisplay-core/internal/telemetry"
	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrNoPorts is returned by -list-ports when nothing is attached.
var ErrNoPorts = errors.New("no serial devices found")

type Flags struct {
	Version   *bool
	Daemon    *bool
	ListPorts *bool
	Config    *bool
	Port      *string
}

// SetupFlags defines all common CLI flags between platforms.
func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run in the foreground with no tray, logging to the console",
		),
		ListPorts: flag.Bool(
			"list-ports",
			false,
			"print detected serial devices, most likely display first, and exit",
		),
		Config: flag.Bool(
			"config",
			false,
			"open the config file in the default editor and exit",
		),
		Port: flag.String(
			"port",
			"",
			"serial port to use for this run instead of the configured one",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("DeskDisplay v%s (%s/%s)\n", config.AppVersion, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}
}

// Post actions all remaining common flags that require the environment to
// be set up. It reports whether the process should exit instead of
// starting the service.
func (f *Flags) Post(cfg *config.Instance) (exit bool, err error) {
	switch {
	case *f.ListPorts:
		return true, printPorts(os.Stdout, helpers.GetSerialDeviceList)
	case *f.Config:
		if err := helpers.OpenPath(cfg.Path()); err != nil {
			return true, fmt.Errorf("error opening config: %w", err)
		}
		return true, nil
	case isFlagPassed("port"):
		applyPortOverride(cfg, *f.Port)
	}
	return false, nil
}

func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("error listing serial devices: %w", err)
	}
	if len(ports) == 0 {
		return ErrNoPorts
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(w, p)
	}
	return nil
}

// applyPortOverride changes the port in memory only; the file keeps the
// user's setting.
func applyPortOverride(cfg *config.Instance, port string) {
	log.Info().Str("port", port).Msg("serial port overridden from command line")
	cfg.SetDevicePort(port)
}

// Setup initializes the user config and logging. Returns a user config
// object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) (*config.Instance, error) {
	cfgDir := helpers.ConfigDir()
	stateDir := helpers.StateDir()

	// Ensure directories exist before logging initialization
	if err := helpers.EnsureDirectories(cfgDir, stateDir); err != nil {
		return nil, fmt.Errorf("error creating directories: %w", err)
	}

	if err := helpers.InitLogging(stateDir, writers...); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(afero.NewOsFs(), cfgDir, defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetDebugLogging(cfg.DebugLogging())

	// Initialize error reporting (opt-in)
	if err := telemetry.Init(telemetry.OptionsFromConfig(cfg)); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}
