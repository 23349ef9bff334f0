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
	"path/filepath"
	"testing"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testDir = "/home/alex/.config/deskdisplay"

func newTestConfig(t *testing.T, fs afero.Fs) *Instance {
	t.Helper()
	cfg, err := NewConfig(fs, testDir, BaseDefaults)
	require.NoError(t, err)
	return cfg
}

func TestNewConfig_WritesDefaults(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	cfg := newTestConfig(t, fs)

	data, err := afero.ReadFile(fs, filepath.Join(testDir, CfgFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `port = 'COM3'`)
	assert.Contains(t, string(data), "baud_rate = 921600")
	assert.Contains(t, string(data), "track_image = 10000")
	assert.Contains(t, string(data), "config_schema = 1")

	assert.Equal(t, "COM3", cfg.DevicePort())
	assert.Equal(t, 921600, cfg.BaudRate())
	assert.True(t, cfg.AudioEnabled())
	assert.NotEmpty(t, cfg.DeviceID())
}

func TestNewConfig_DefaultIntervals(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t, afero.NewMemMapFs())

	assert.Equal(t, 3*time.Second, cfg.Interval(commands.CPUTemperature))
	assert.Equal(t, 3*time.Second, cfg.Interval(commands.GPUTemperature))
	assert.Equal(t, 5*time.Second, cfg.Interval(commands.RAMUsage))
	assert.Equal(t, 10*time.Second, cfg.Interval(commands.TrackImage))
	assert.Equal(t, 5*time.Second, cfg.Interval(commands.TrackTitle))
	assert.Equal(t, 10*time.Millisecond, cfg.Interval(commands.SoundSpectrum))
}

func TestLoad_FileValuesOverDefaults(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	path := filepath.Join(testDir, CfgFile)
	require.NoError(t, afero.WriteFile(fs, path, []byte(`
config_schema = 1
debug_logging = true

[device]
port = "/dev/ttyUSB0"

[intervals]
cpu_temperature = 1500
ram_usage = -1

[service]
device_id = "fixed-id"
`), 0o600))

	cfg := newTestConfig(t, fs)

	assert.Equal(t, "/dev/ttyUSB0", cfg.DevicePort())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate())
	assert.True(t, cfg.DebugLogging())
	assert.Equal(t, 1500*time.Millisecond, cfg.Interval(commands.CPUTemperature))
	assert.Equal(t, commands.RAMUsage.DefaultInterval(), cfg.Interval(commands.RAMUsage))
	assert.Equal(t, 3*time.Second, cfg.Interval(commands.GPUTemperature))
	assert.Equal(t, "fixed-id", cfg.DeviceID())
}

func TestLoad_SchemaMismatch(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte("config_schema = 7\n"), 0o600))

	_, err := NewConfig(fs, testDir, BaseDefaults)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoad_InvalidTOML(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte("[device\n"), 0o600))

	_, err := NewConfig(fs, testDir, BaseDefaults)
	require.Error(t, err)
}

func TestNewConfig_MissingDeviceIDIsPersisted(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	path := filepath.Join(testDir, CfgFile)
	require.NoError(t, afero.WriteFile(fs, path, []byte("config_schema = 1\n"), 0o600))

	cfg := newTestConfig(t, fs)
	require.NotEmpty(t, cfg.DeviceID())

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), cfg.DeviceID())
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	cfg := newTestConfig(t, fs)

	cfg.SetDevicePort("auto")
	cfg.SetAudioEnabled(false)
	cfg.SetDebugLogging(true)
	require.NoError(t, cfg.Save())

	reloaded := newTestConfig(t, fs)
	assert.Equal(t, "auto", reloaded.DevicePort())
	assert.False(t, reloaded.AudioEnabled())
	assert.True(t, reloaded.DebugLogging())
	assert.Equal(t, cfg.DeviceID(), reloaded.DeviceID())
}

func TestErrorReporting_RequiresDSN(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(`
config_schema = 1
[service]
error_reporting = true
`), 0o600))
	cfg := newTestConfig(t, fs)

	enabled, _ := cfg.ErrorReporting()
	assert.False(t, enabled)

	cfg.vals.Service.ErrorReportingDSN = "https://key@example.com/1"
	enabled, dsn := cfg.ErrorReporting()
	assert.True(t, enabled)
	assert.Equal(t, "https://key@example.com/1", dsn)

	cfg.SetErrorReporting(false)
	enabled, _ = cfg.ErrorReporting()
	assert.False(t, enabled)
}

func TestSoundPaths(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(`
config_schema = 1
[audio]
connect_sound = "sounds/up.wav"
disconnect_sound = ""
`), 0o600))
	cfg := newTestConfig(t, fs)

	path, ok := cfg.ConnectSoundPath()
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(testDir, "sounds", "up.wav"), path)

	_, ok = cfg.DisconnectSoundPath()
	assert.False(t, ok)

	cfg.vals.Audio.ConnectSound = nil
	path, ok = cfg.ConnectSoundPath()
	assert.True(t, ok)
	assert.Empty(t, path)
}

// TestPropertyIntervalNeverZero checks that whatever the file says, every
// tag gets a positive refresh period.
func TestPropertyIntervalNeverZero(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		cfg := &Instance{vals: BaseDefaults}
		cfg.vals.Intervals = Intervals{
			CPUTemperature: rapid.IntRange(-1000, 60000).Draw(t, "cpu"),
			GPUTemperature: rapid.IntRange(-1000, 60000).Draw(t, "gpu"),
			RAMUsage:       rapid.IntRange(-1000, 60000).Draw(t, "ram"),
			TrackImage:     rapid.IntRange(-1000, 60000).Draw(t, "image"),
			TrackTitle:     rapid.IntRange(-1000, 60000).Draw(t, "title"),
			SoundSpectrum:  rapid.IntRange(-1000, 60000).Draw(t, "sound"),
		}
		for _, tag := range commands.All() {
			if cfg.Interval(tag) <= 0 {
				t.Fatalf("%s: non-positive interval", tag.Name())
			}
		}
	})
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "baud rate too high",
			body:  "[device]\nbaud_rate = 9000000\n",
			field: "device.baud_rate",
		},
		{
			name:  "interval over a day",
			body:  "[intervals]\ntrack_image = 90000000\n",
			field: "intervals.track_image",
		},
		{
			name:  "dsn not a url",
			body:  "[service]\nerror_reporting_dsn = \"not a url\"\n",
			field: "service.error_reporting_dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := afero.NewMemMapFs()
			body := "config_schema = 1\n" + tt.body
			require.NoError(t, afero.WriteFile(fs, filepath.Join(testDir, CfgFile), []byte(body), 0o600))

			_, err := NewConfig(fs, testDir, BaseDefaults)
			require.ErrorIs(t, err, ErrInvalidValue)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
