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

import "path/filepath"

type Audio struct {
	// ConnectSound and DisconnectSound follow the same rules: unset plays
	// the built-in tone, empty disables it, anything else is a file path.
	ConnectSound    *string `toml:"connect_sound,omitempty"`
	DisconnectSound *string `toml:"disconnect_sound,omitempty"`
	Enabled         bool    `toml:"enabled"`
	Chime           bool    `toml:"chime"`
}

func (c *Instance) AudioEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Audio.Enabled
}

func (c *Instance) SetAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Audio.Enabled = enabled
}

func (c *Instance) ChimeEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Audio.Chime
}

// ConnectSoundPath returns the resolved connect sound and whether it plays.
// Relative paths resolve against the config directory.
func (c *Instance) ConnectSoundPath() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.soundPathLocked(c.vals.Audio.ConnectSound)
}

func (c *Instance) DisconnectSoundPath() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.soundPathLocked(c.vals.Audio.DisconnectSound)
}

func (c *Instance) soundPathLocked(setting *string) (string, bool) {
	if setting == nil {
		return "", true
	}
	if *setting == "" {
		return "", false
	}
	if filepath.IsAbs(*setting) {
		return *setting, true
	}
	return filepath.Join(filepath.Dir(c.cfgPath), *setting), true
}
