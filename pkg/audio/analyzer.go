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
	"math"
	"math/cmplx"

	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	NumBars   = 32
	FFTLength = 4096
	MinFreq   = 20.0
	MaxFreq   = 20000.0
	Smoothing = 0.5
)

// Analyzer turns mono sample windows into smoothed spectrum bars. It keeps
// the previous bars between calls, so one Analyzer serves one stream.
type Analyzer struct {
	fft      *fourier.FFT
	buf      []float64
	coeffs   []complex128
	mags     []float64
	smoothed [NumBars]float64
	mu       syncutil.Mutex
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		fft:  fourier.NewFFT(FFTLength),
		buf:  make([]float64, FFTLength),
		mags: make([]float64, FFTLength/2),
	}
}

// Bars analyses the first FFTLength samples (zero padded if shorter) and
// returns NumBars values scaled to 0..255.
func (a *Analyzer) Bars(samples []float32, sampleRate int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.buf {
		if i < len(samples) {
			a.buf[i] = float64(samples[i])
		} else {
			a.buf[i] = 0
		}
	}
	window.Hann(a.buf)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.buf)
	for i := range a.mags {
		a.mags[i] = cmplx.Abs(a.coeffs[i])
	}

	bars := bandAverages(a.mags, float64(sampleRate))

	peak := 0.0
	for _, v := range bars {
		peak = math.Max(peak, v)
	}
	if peak > 0 {
		for i := range bars {
			bars[i] /= peak
		}
	}

	out := make([]byte, NumBars)
	for i := range bars {
		a.smoothed[i] = Smoothing*a.smoothed[i] + (1-Smoothing)*bars[i]
		out[i] = byte(math.Min(a.smoothed[i]*255, 255))
	}
	return out
}

// Reset clears the smoothing history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothed = [NumBars]float64{}
}

// bandAverages maps magnitudes onto logarithmically spaced bands, sampling
// each band every half bin with linear interpolation between bins.
func bandAverages(mags []float64, sampleRate float64) []float64 {
	bars := make([]float64, NumBars)
	if sampleRate <= 0 {
		return bars
	}
	ratio := MaxFreq / MinFreq
	for i := range bars {
		startFreq := MinFreq * math.Pow(ratio, float64(i)/NumBars)
		endFreq := MinFreq * math.Pow(ratio, float64(i+1)/NumBars)
		startBin := startFreq / sampleRate * FFTLength
		endBin := endFreq / sampleRate * FFTLength

		sum, count := 0.0, 0
		for b := startBin; b < endBin; b += 0.5 {
			idx := int(b)
			if idx >= len(mags)-1 {
				break
			}
			frac := b - float64(idx)
			sum += (1-frac)*mags[idx] + frac*mags[idx+1]
			count++
		}
		if count > 0 {
			bars[i] = sum / float64(count)
		}
	}
	return bars
}

// Downmix averages interleaved frames into a mono signal.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[f*channels+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}
