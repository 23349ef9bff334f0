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

// Package commands holds the fixed catalog of display commands, the
// command value that flows through the scheduler and the wire encoding
// understood by the display firmware.
package commands

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Tag identifies a class of command. Its value is the wire prefix the
// firmware dispatches on.
type Tag string

const (
	CPUTemperature Tag = "CPUT:"
	GPUTemperature Tag = "GPUT:"
	RAMUsage       Tag = "RAM:"
	SoundSpectrum  Tag = "SOUND:"
	TrackTitle     Tag = "TITLE:"
	OSVersion      Tag = "WIND:"
	UserIdentity   Tag = "USER:"
	TrackImage     Tag = "IMG:"
)

// LineTerminator ends every text command and binary frame.
const LineTerminator = "\n"

// ImageAckMarker is printed by the firmware once an image frame has been
// decoded and drawn.
const ImageAckMarker = "[IMG] Image drawn successfully"

// MaxTitleLength is the number of characters the title area can show.
const MaxTitleLength = 35

// SeedDelay is the delay used for one-shot commands queued on connect.
const SeedDelay = 50 * time.Millisecond

type entry struct {
	name     string
	interval time.Duration
}

var catalog = map[Tag]entry{
	CPUTemperature: {name: "cpu_temperature", interval: 3000 * time.Millisecond},
	GPUTemperature: {name: "gpu_temperature", interval: 3000 * time.Millisecond},
	RAMUsage:       {name: "ram_usage", interval: 5000 * time.Millisecond},
	SoundSpectrum:  {name: "sound_spectrum", interval: 10 * time.Millisecond},
	TrackTitle:     {name: "track_title", interval: 5000 * time.Millisecond},
	OSVersion:      {name: "os_version", interval: SeedDelay},
	UserIdentity:   {name: "user_identity", interval: SeedDelay},
	TrackImage:     {name: "track_image", interval: 10000 * time.Millisecond},
}

// Periodic lists the tags kept topped up by the refill policy, in priority
// order. The sound spectrum is fed by the audio producer instead.
var Periodic = []Tag{
	CPUTemperature,
	GPUTemperature,
	RAMUsage,
	TrackImage,
	TrackTitle,
}

// Seed lists the one-shot commands queued right after the link opens.
var Seed = []Tag{
	UserIdentity,
	OSVersion,
	CPUTemperature,
	GPUTemperature,
	RAMUsage,
}

// All returns every catalog tag.
func All() []Tag {
	return []Tag{
		CPUTemperature,
		GPUTemperature,
		RAMUsage,
		SoundSpectrum,
		TrackTitle,
		OSVersion,
		UserIdentity,
		TrackImage,
	}
}

// Valid reports whether t is a catalog entry.
func (t Tag) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// Name returns a stable snake_case name for logs and config keys.
func (t Tag) Name() string {
	if e, ok := catalog[t]; ok {
		return e.name
	}
	return "unknown"
}

// DefaultInterval returns the built-in refresh interval for t.
func (t Tag) DefaultInterval() time.Duration {
	return catalog[t].interval
}

func (t Tag) String() string {
	return t.Name()
}

type payloadKind uint8

const (
	kindLiteral payloadKind = iota
	kindDeferred
)

// Payload is either a precomputed string or a marker asking the transfer
// engine to compute the value when the command is dispatched.
type Payload struct {
	value string
	kind  payloadKind
}

// Literal returns a payload carrying s verbatim. An empty s is a valid value.
func Literal(s string) Payload {
	return Payload{kind: kindLiteral, value: s}
}

// Deferred returns a payload resolved at dispatch time.
func Deferred() Payload {
	return Payload{kind: kindDeferred}
}

// IsDeferred reports whether the payload must be computed at dispatch.
func (p Payload) IsDeferred() bool {
	return p.kind == kindDeferred
}

// Value returns the literal string. It is empty for deferred payloads.
func (p Payload) Value() string {
	return p.value
}

func (p Payload) String() string {
	if p.IsDeferred() {
		return "<deferred>"
	}
	return p.value
}

// Command is a scheduled unit of work for the display.
type Command struct {
	DueAt   time.Time
	Payload Payload
	Tag     Tag
	ID      uint64
}

// New builds a command due delay after now.
func New(tag Tag, now time.Time, delay time.Duration, payload Payload) Command {
	return Command{
		Tag:     tag,
		DueAt:   now.Add(delay),
		Payload: payload,
	}
}

// Due reports whether the command may be dispatched at now.
func (c Command) Due(now time.Time) bool {
	return !c.DueAt.After(now)
}

// EncodeText renders a text command: <TAG><payload>\n.
func EncodeText(tag Tag, payload string) []byte {
	buf := make([]byte, 0, len(tag)+len(payload)+len(LineTerminator))
	buf = append(buf, tag...)
	buf = append(buf, payload...)
	buf = append(buf, LineTerminator...)
	return buf
}

// EncodeFrame renders a binary frame: <TAG><uint32 LE length><body>\n.
func EncodeFrame(tag Tag, body []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(tag) + 4 + len(body) + len(LineTerminator))
	buf.WriteString(string(tag))
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body))) //nolint:gosec // images are a few KB
	buf.Write(header[:])
	buf.Write(body)
	buf.WriteString(LineTerminator)
	return buf.Bytes()
}

// EncodeSpectrum renders bar heights as the comma separated decimal list
// the firmware expects after SOUND:.
func EncodeSpectrum(bars []byte) string {
	var sb strings.Builder
	sb.Grow(len(bars) * 4)
	for i, b := range bars {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(b)))
	}
	return sb.String()
}

// TruncateTitle composes s to NFC and cuts it to MaxTitleLength
// characters, so a decomposed accent counts once and is never split from
// its base letter.
func TruncateTitle(s string) string {
	s = norm.NFC.String(s)
	r := []rune(s)
	if len(r) <= MaxTitleLength {
		return s
	}
	return string(r[:MaxTitleLength])
}
