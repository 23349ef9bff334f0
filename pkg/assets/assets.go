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

package assets

import (
	"runtime"

	_ "embed"
)

//go:embed icon.png
var IconPNG []byte

//go:embed icon.ico
var IconICO []byte

// TrayIcon returns the icon format the system tray expects on this OS.
func TrayIcon() []byte {
	if runtime.GOOS == "windows" {
		return IconICO
	}
	return IconPNG
}
