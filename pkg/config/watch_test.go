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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg, err := NewConfig(afero.NewOsFs(), dir, BaseDefaults)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- cfg.Watch(ctx, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	body := "config_schema = 1\ndebug_logging = true\n[device]\nport = \"/dev/ttyACM0\"\n"
	// the watcher may not be registered yet, keep writing until it reloads
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, CfgFile), []byte(body), 0o600)
		select {
		case <-reloaded:
			return true
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 8*time.Second, 10*time.Millisecond)

	assert.Equal(t, "/dev/ttyACM0", cfg.DevicePort())
	assert.True(t, cfg.DebugLogging())

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_KeepsValuesOnBadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg, err := NewConfig(afero.NewOsFs(), dir, BaseDefaults)
	require.NoError(t, err)
	id := cfg.DeviceID()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cfg.Watch(ctx, nil) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, CfgFile), []byte("[device\n"), 0o600))
	time.Sleep(2 * reloadDebounce)

	assert.Equal(t, id, cfg.DeviceID())
	assert.Equal(t, DefaultPort, cfg.DevicePort())

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_MissingDirectory(t *testing.T) {
	t.Parallel()
	cfg := &Instance{cfgPath: filepath.Join(t.TempDir(), "gone", CfgFile)}

	err := cfg.Watch(context.Background(), nil)
	require.Error(t, err)
}
