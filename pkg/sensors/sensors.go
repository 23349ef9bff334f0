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

// Package sensors reads the host telemetry shown on the display.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/mackerelio/go-osstat/memory"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
)

// ErrUnavailable means the host exposes no matching sensor.
var ErrUnavailable = errors.New("sensor reading unavailable")

const bytesPerGB = 1024 * 1024 * 1024

// Reader is the hardware collaborator used to resolve telemetry payloads.
type Reader interface {
	CPUTemperature(ctx context.Context) (float64, error)
	GPUTemperature(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (used, total float64, err error)
	OSVersion(ctx context.Context) (string, error)
	UserName() (string, error)
}

// System reads sensors through gopsutil, with go-osstat as a second
// source for memory.
type System struct {
	temperatures func(ctx context.Context) ([]sensors.TemperatureStat, error)
	memory       func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	osMemory     func() (*memory.Stats, error)
	hostInfo     func(ctx context.Context) (*host.InfoStat, error)
}

func NewSystem() *System {
	return &System{
		temperatures: sensors.TemperaturesWithContext,
		memory:       mem.VirtualMemoryWithContext,
		osMemory:     memory.Get,
		hostInfo:     host.InfoWithContext,
	}
}

func (s *System) readTemperatures(ctx context.Context) ([]sensors.TemperatureStat, error) {
	temps, err := s.temperatures(ctx)
	if err != nil {
		// gopsutil returns partial results alongside warnings
		if len(temps) == 0 {
			return nil, fmt.Errorf("failed to read temperatures: %w", err)
		}
		log.Debug().Err(err).Msg("partial temperature readings")
	}
	return temps, nil
}

// CPUTemperature returns the hottest CPU-class sensor in Celsius.
func (s *System) CPUTemperature(ctx context.Context) (float64, error) {
	temps, err := s.readTemperatures(ctx)
	if err != nil {
		return 0, err
	}
	return PickCPU(temps)
}

// GPUTemperature returns the GPU core temperature in Celsius.
func (s *System) GPUTemperature(ctx context.Context) (float64, error) {
	temps, err := s.readTemperatures(ctx)
	if err != nil {
		return 0, err
	}
	return PickGPU(temps)
}

// Memory returns used and total physical memory in GiB.
func (s *System) Memory(ctx context.Context) (used, total float64, err error) {
	vm, err := s.memory(ctx)
	if err != nil {
		if s.osMemory == nil {
			return 0, 0, fmt.Errorf("failed to read memory: %w", err)
		}
		log.Debug().Err(err).Msg("gopsutil memory failed, trying osstat")
		return s.fallbackMemory()
	}
	if vm.Total == 0 {
		return 0, 0, ErrUnavailable
	}
	total = float64(vm.Total) / bytesPerGB
	used = float64(vm.Total-vm.Available) / bytesPerGB
	return used, total, nil
}

func (s *System) fallbackMemory() (used, total float64, err error) {
	st, err := s.osMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read memory: %w", err)
	}
	if st.Total == 0 {
		return 0, 0, ErrUnavailable
	}
	return float64(st.Used) / bytesPerGB, float64(st.Total) / bytesPerGB, nil
}

func (s *System) OSVersion(ctx context.Context) (string, error) {
	info, err := s.hostInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read host info: %w", err)
	}
	v := FormatOSVersion(info)
	if v == "" {
		return "", ErrUnavailable
	}
	return v, nil
}

func (*System) UserName() (string, error) {
	u, err := user.Current()
	if err == nil && u.Username != "" {
		return StripDomain(u.Username), nil
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up current user: %w", err)
	}
	return "", ErrUnavailable
}

var gpuKeys = []string{"amdgpu", "radeon", "nouveau", "nvidia", "i915", "gpu"}

// not CPU, not GPU, never the hottest thing worth showing
var ignoredKeys = []string{"nvme", "drivetemp", "battery", "iwlwifi", "ath1", "mt79"}

func matchesAny(key string, patterns []string) bool {
	key = strings.ToLower(key)
	for _, p := range patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func isGPU(key string) bool {
	return matchesAny(key, gpuKeys)
}

// PickCPU returns the hottest non-zero reading that is not a GPU or a
// peripheral. The package sensor is almost always the hottest one.
func PickCPU(temps []sensors.TemperatureStat) (float64, error) {
	best := math.Inf(-1)
	for _, t := range temps {
		if t.Temperature <= 0 || isGPU(t.SensorKey) || matchesAny(t.SensorKey, ignoredKeys) {
			continue
		}
		if t.Temperature > best {
			best = t.Temperature
		}
	}
	if math.IsInf(best, -1) {
		return 0, ErrUnavailable
	}
	return best, nil
}

// PickGPU prefers an edge/core sensor and falls back to the hottest GPU
// reading.
func PickGPU(temps []sensors.TemperatureStat) (float64, error) {
	best := math.Inf(-1)
	for _, t := range temps {
		if t.Temperature <= 0 || !isGPU(t.SensorKey) {
			continue
		}
		if matchesAny(t.SensorKey, []string{"edge", "core"}) {
			return t.Temperature, nil
		}
		if t.Temperature > best {
			best = t.Temperature
		}
	}
	if math.IsInf(best, -1) {
		return 0, ErrUnavailable
	}
	return best, nil
}

// FormatTemperature renders a reading as the firmware expects, e.g. 45.5C.
func FormatTemperature(celsius float64) string {
	return strconv.FormatFloat(math.Round(celsius*10)/10, 'f', -1, 64) + "C"
}

// FormatMemory renders used/total GiB, e.g. "8.0 / 16GB".
func FormatMemory(used, total float64) string {
	return fmt.Sprintf("%.1f / %.0fGB", used, total)
}

// FormatOSVersion renders a short "<name> <major>" identity string.
func FormatOSVersion(info *host.InfoStat) string {
	if info == nil {
		return ""
	}
	major := majorVersion(info.PlatformVersion)
	if major == "" {
		major = majorVersion(info.KernelVersion)
	}

	var name string
	switch info.OS {
	case "windows":
		name = "Windows"
	case "darwin":
		name = "macOS"
	default:
		name = info.Platform
		if name == "" {
			name = info.OS
		}
		if name != "" {
			name = strings.ToUpper(name[:1]) + name[1:]
		}
	}

	return strings.TrimSpace(name + " " + major)
}

func majorVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if i := strings.IndexAny(v, ". "); i >= 0 {
		return v[:i]
	}
	return v
}

// StripDomain turns DOMAIN\user into user.
func StripDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
