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

package commands

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeText_RAM(t *testing.T) {
	t.Parallel()

	got := EncodeText(RAMUsage, "8.0 / 16GB")
	assert.Equal(t, []byte("RAM:8.0 / 16GB\n"), got)
}

func TestEncodeText_EmptyPayload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte("USER:\n"), EncodeText(UserIdentity, ""))
}

func TestEncodeFrame(t *testing.T) {
	t.Parallel()

	body := []byte{0xff, 0xd8, 0x00, 0x0a, 0xff, 0xd9}
	frame := EncodeFrame(TrackImage, body)

	require.Len(t, frame, len("IMG:")+4+len(body)+1)
	assert.Equal(t, "IMG:", string(frame[:4]))
	assert.Equal(t, uint32(len(body)), binary.LittleEndian.Uint32(frame[4:8]))
	assert.Equal(t, body, frame[8:8+len(body)])
	assert.Equal(t, byte('\n'), frame[len(frame)-1])
}

func TestPropertyEncodeFrameLength(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "body")
		frame := EncodeFrame(TrackImage, body)

		if got := binary.LittleEndian.Uint32(frame[4:8]); int(got) != len(body) {
			t.Fatalf("length header %d, body %d", got, len(body))
		}
		if len(frame) != 4+4+len(body)+1 {
			t.Fatalf("frame length %d for body %d", len(frame), len(body))
		}
	})
}

func TestEncodeSpectrum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0,17,255", EncodeSpectrum([]byte{0, 17, 255}))
	assert.Empty(t, EncodeSpectrum(nil))
}

func TestTruncateTitle(t *testing.T) {
	t.Parallel()

	short := "Song - Artist"
	assert.Equal(t, short, TruncateTitle(short))

	long := strings.Repeat("a", 50)
	assert.Len(t, TruncateTitle(long), MaxTitleLength)

	// multi-byte characters are counted, not bytes
	kana := strings.Repeat("ア", 40)
	assert.Equal(t, MaxTitleLength, len([]rune(TruncateTitle(kana))))

	// "e" + combining acute composes to a single "é"
	assert.Equal(t, "Café", TruncateTitle("Cafe\u0301"))
}

func TestPayloadVariant(t *testing.T) {
	t.Parallel()

	empty := Literal("")
	assert.False(t, empty.IsDeferred())
	assert.Empty(t, empty.Value())

	d := Deferred()
	assert.True(t, d.IsDeferred())
	assert.Equal(t, "<deferred>", d.String())
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	for _, tag := range All() {
		assert.True(t, tag.Valid(), tag)
		assert.NotEqual(t, "unknown", tag.Name())
		assert.Positive(t, tag.DefaultInterval())
	}
	assert.False(t, Tag("NOPE:").Valid())
	assert.NotContains(t, Periodic, SoundSpectrum)
	assert.Equal(t, []Tag{CPUTemperature, GPUTemperature, RAMUsage, TrackImage, TrackTitle}, Periodic)
}

func TestCommandDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cmd := New(CPUTemperature, now, time.Second, Deferred())

	assert.False(t, cmd.Due(now))
	assert.True(t, cmd.Due(now.Add(time.Second)))
	assert.True(t, cmd.Due(now.Add(2*time.Second)))
}
