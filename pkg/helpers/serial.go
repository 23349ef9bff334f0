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

package helpers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type usbID struct {
	Vid string
	Pid string
}

// USB to UART bridges found on ESP32 dev boards, plus the native USB CDC
// of the S2/S3/C3 chips.
var displayBridges = []usbID{
	{Vid: "10c4", Pid: "ea60"}, // CP210x
	{Vid: "1a86", Pid: "7523"}, // CH340
	{Vid: "1a86", Pid: "55d4"}, // CH9102
	{Vid: "0403", Pid: "6001"}, // FT232R
	{Vid: "0403", Pid: "6015"}, // FT231X
	{Vid: "303a", Pid: "1001"}, // Espressif USB JTAG/serial
}

func isDisplayBridge(p *enumerator.PortDetails) bool {
	vid := strings.ToLower(p.VID)
	pid := strings.ToLower(p.PID)
	for _, b := range displayBridges {
		if vid == b.Vid && pid == b.Pid {
			return true
		}
	}
	return false
}

// RankSerialPorts keeps USB ports only and orders known display bridges
// first, each group sorted by name.
func RankSerialPorts(ports []*enumerator.PortDetails) []string {
	var known, other []string
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		if isDisplayBridge(p) {
			known = append(known, p.Name)
		} else {
			other = append(other, p.Name)
		}
	}
	slices.Sort(known)
	slices.Sort(other)
	return append(known, other...)
}

// GetSerialDeviceList returns candidate display ports, most likely first.
func GetSerialDeviceList() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		return RankSerialPorts(details), nil
	}

	log.Debug().Err(err).Msg("detailed port list unavailable, falling back to names")
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list: %w", err)
	}
	slices.Sort(ports)
	return ports, nil
}
