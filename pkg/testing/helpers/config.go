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

// Package helpers holds shared test setup for packages that need a real
// config instance.
package helpers

import (
	"path/filepath"
	"testing"

	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestConfigDir is where config files live on the in-memory filesystem.
const TestConfigDir = "/config"

// NewInMemoryConfig returns a config backed by a fresh in-memory
// filesystem. A non-empty body is written as the config file first and
// must include config_schema.
func NewInMemoryConfig(t *testing.T, body string) (*config.Instance, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	if body != "" {
		path := filepath.Join(TestConfigDir, config.CfgFile)
		require.NoError(t, fs.MkdirAll(TestConfigDir, 0o750))
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o600))
	}

	cfg, err := config.NewConfig(fs, TestConfigDir, config.BaseDefaults)
	require.NoError(t, err)
	return cfg, fs
}
