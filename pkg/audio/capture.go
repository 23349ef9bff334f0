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
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

const (
	CaptureSampleRate = 48000
	CaptureChannels   = 2
)

// SampleFunc receives the most recent FFTLength mono samples. It runs on
// the audio thread and must return quickly.
type SampleFunc func(mono []float32, sampleRate int)

// Source is anything that can stream system audio to a SampleFunc.
type Source interface {
	Start(onSamples SampleFunc) error
	Stop() error
}

// Capture records what the system is playing. Windows uses WASAPI loopback;
// other platforms record the default capture device, which on PulseAudio and
// PipeWire can be pointed at a monitor source.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	window *sampleWindow
	mu     syncutil.Mutex
}

func NewCapture() *Capture {
	return &Capture{}
}

func captureDeviceType() malgo.DeviceType {
	if runtime.GOOS == "windows" {
		return malgo.Loopback
	}
	return malgo.Capture
}

func (c *Capture) Start(onSamples SampleFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		return errors.New("audio capture already started")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	if mctx == nil {
		return errors.New("malgo context is nil after initialization")
	}

	cfg := malgo.DefaultDeviceConfig(captureDeviceType())
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = CaptureChannels
	cfg.SampleRate = CaptureSampleRate
	cfg.Alsa.NoMMap = 1

	win := newSampleWindow(FFTLength)
	onData := func(_, input []byte, _ uint32) {
		mono := Downmix(decodeF32(input), CaptureChannels)
		onSamples(win.push(mono), CaptureSampleRate)
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.ctx = mctx
	c.device = device
	c.window = win
	log.Info().Bool("loopback", captureDeviceType() == malgo.Loopback).Msg("audio capture started")
	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	var stopErr error
	if err := c.device.Stop(); err != nil {
		stopErr = fmt.Errorf("failed to stop capture device: %w", err)
	}
	c.device.Uninit()
	_ = c.ctx.Uninit()
	c.ctx.Free()
	c.device = nil
	c.ctx = nil
	c.window = nil
	log.Info().Msg("audio capture stopped")
	return stopErr
}

// decodeF32 reinterprets little endian float32 PCM bytes.
func decodeF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// sampleWindow keeps the newest size samples across callbacks so each
// analysis sees a full FFT window even when the driver delivers small
// periods.
type sampleWindow struct {
	buf  []float32
	size int
}

func newSampleWindow(size int) *sampleWindow {
	return &sampleWindow{buf: make([]float32, 0, size), size: size}
}

func (w *sampleWindow) push(samples []float32) []float32 {
	if len(samples) >= w.size {
		w.buf = append(w.buf[:0], samples[len(samples)-w.size:]...)
	} else {
		overflow := len(w.buf) + len(samples) - w.size
		if overflow > 0 {
			w.buf = append(w.buf[:0], w.buf[overflow:]...)
		}
		w.buf = append(w.buf, samples...)
	}
	out := make([]float32, len(w.buf))
	copy(out, w.buf)
	return out
}
