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

package config

import (
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
)

const (
	DefaultPort     = "COM3"
	DefaultBaudRate = 921600
)

type Device struct {
	// Port is a device path or COM name. Empty or "auto" picks the first
	// serial device found.
	Port     string `toml:"port" validate:"max=256"`
	BaudRate int    `toml:"baud_rate" validate:"gte=0,lte=4000000"`
}

// Intervals are refresh periods in milliseconds. Values of zero or less
// fall back to the catalog default; anything over a day is rejected.
type Intervals struct {
	CPUTemperature int `toml:"cpu_temperature" validate:"lte=86400000"`
	GPUTemperature int `toml:"gpu_temperature" validate:"lte=86400000"`
	RAMUsage       int `toml:"ram_usage" validate:"lte=86400000"`
	TrackImage     int `toml:"track_image" validate:"lte=86400000"`
	TrackTitle     int `toml:"track_title" validate:"lte=86400000"`
	SoundSpectrum  int `toml:"sound_spectrum" validate:"lte=86400000"`
}

func DefaultIntervals() Intervals {
	ms := func(t commands.Tag) int { return int(t.DefaultInterval().Milliseconds()) }
	return Intervals{
		CPUTemperature: ms(commands.CPUTemperature),
		GPUTemperature: ms(commands.GPUTemperature),
		RAMUsage:       ms(commands.RAMUsage),
		TrackImage:     ms(commands.TrackImage),
		TrackTitle:     ms(commands.TrackTitle),
		SoundSpectrum:  ms(commands.SoundSpectrum),
	}
}

func (c *Instance) DevicePort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.Port
}

func (c *Instance) SetDevicePort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Device.Port = port
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Device.BaudRate <= 0 {
		return DefaultBaudRate
	}
	return c.vals.Device.BaudRate
}

// Interval returns the configured refresh period for tag, falling back to
// the catalog default when unset or not positive.
func (c *Instance) Interval(tag commands.Tag) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ms int
	switch tag {
	case commands.CPUTemperature:
		ms = c.vals.Intervals.CPUTemperature
	case commands.GPUTemperature:
		ms = c.vals.Intervals.GPUTemperature
	case commands.RAMUsage:
		ms = c.vals.Intervals.RAMUsage
	case commands.TrackImage:
		ms = c.vals.Intervals.TrackImage
	case commands.TrackTitle:
		ms = c.vals.Intervals.TrackTitle
	case commands.SoundSpectrum:
		ms = c.vals.Intervals.SoundSpectrum
	}
	if ms <= 0 {
		return tag.DefaultInterval()
	}
	return time.Duration(ms) * time.Millisecond
}
