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

package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/gen2brain/malgo"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const playbackRate = beep.SampleRate(48000)

const (
	connectToneHz    = 880
	disconnectToneHz = 440
	toneLength       = 120 * time.Millisecond
)

// Player plays short notification sounds.
type Player interface {
	PlayConnect() error
	PlayDisconnect() error
}

// SoundSource resolves the configured sound for each event. ok is false
// when the event is muted; an empty path with ok set plays the built-in
// tone.
type SoundSource interface {
	ConnectSoundPath() (path string, ok bool)
	DisconnectSoundPath() (path string, ok bool)
}

// Chime announces display connection changes. A nil Sounds plays the
// built-in tones for both events.
type Chime struct {
	Sounds SoundSource
	cancel context.CancelFunc
	gen    uint64
	mu     syncutil.Mutex
}

func (c *Chime) PlayConnect() error {
	path, ok := "", true
	if c.Sounds != nil {
		path, ok = c.Sounds.ConnectSoundPath()
	}
	if !ok {
		return nil
	}
	return c.playEvent(path, connectToneHz)
}

func (c *Chime) PlayDisconnect() error {
	path, ok := "", true
	if c.Sounds != nil {
		path, ok = c.Sounds.DisconnectSoundPath()
	}
	if !ok {
		return nil
	}
	return c.playEvent(path, disconnectToneHz)
}

func (c *Chime) playEvent(path string, toneHz float64) error {
	var (
		s   beep.Streamer
		err error
	)
	if path != "" {
		s, err = DecodeFile(path)
	} else {
		s, err = Tone(toneHz, toneLength)
	}
	if err != nil {
		return err
	}
	c.play(s)
	return nil
}

// play replaces whatever is currently sounding with s.
func (c *Chime) play(s beep.Streamer) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			if c.gen == gen {
				c.cancel = nil
			}
			c.mu.Unlock()
			cancel()
		}()
		if err := playStream(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("failed to play chime")
		}
	}()
}

// Tone is a quiet sine beep of the given length at the playback rate.
func Tone(freq float64, d time.Duration) (beep.Streamer, error) {
	sine, err := generators.SineTone(playbackRate, freq)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tone: %w", err)
	}
	return &effects.Gain{Streamer: beep.Take(playbackRate.N(d), sine), Gain: -0.75}, nil
}

// DecodeFile loads a WAV, MP3, OGG or FLAC file and resamples it to the
// playback rate.
func DecodeFile(path string) (beep.Streamer, error) {
	//nolint:gosec // G304: path comes from the user's own config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sound file: %w", err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		s, format, err = wav.Decode(bytes.NewReader(data))
	case ".mp3":
		s, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".ogg":
		s, format, err = vorbis.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".flac":
		s, format, err = flac.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported sound format %q (supported: .wav, .mp3, .ogg, .flac)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode sound file: %w", err)
	}
	return beep.Resample(4, format.SampleRate, playbackRate, s), nil
}

// playStream renders s through the default playback device until it ends
// or ctx is cancelled.
func playStream(ctx context.Context, s beep.Streamer) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 2
	cfg.SampleRate = uint32(playbackRate)
	cfg.Alsa.NoMMap = 1

	done := make(chan struct{})
	var (
		mu       syncutil.Mutex
		finished bool
		frames   [][2]float64
	)
	onData := func(output, _ []byte, frameCount uint32) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			clear(output)
			return
		}
		if len(frames) < int(frameCount) {
			frames = make([][2]float64, frameCount)
		}
		n, ok := s.Stream(frames[:frameCount])
		encodeF32(output, frames[:n])
		if !ok || n < int(frameCount) {
			finished = true
			close(done)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		finished = true
		mu.Unlock()
	}

	if err := device.Stop(); err != nil {
		log.Debug().Err(err).Msg("failed to stop playback device")
	}
	return ctx.Err()
}

// encodeF32 writes stereo frames as interleaved little endian float32 and
// zeroes the rest of out.
func encodeF32(out []byte, frames [][2]float64) {
	off := 0
	for _, f := range frames {
		if off+8 > len(out) {
			break
		}
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(f[0])))
		binary.LittleEndian.PutUint32(out[off+4:], math.Float32bits(float32(f[1])))
		off += 8
	}
	clear(out[off:])
}
