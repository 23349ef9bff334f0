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
	"sync/atomic"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/queue"
	"github.com/jonboulle/clockwork"
)

// Producer feeds spectrum commands into the queue from the capture
// callback. It keeps at most one spectrum command pending and skips the FFT
// entirely while one is waiting.
type Producer struct {
	queue    *queue.Queue
	analyzer *Analyzer
	clock    clockwork.Clock
	interval time.Duration
	produced atomic.Uint64
	dropped  atomic.Uint64
}

func NewProducer(q *queue.Queue, clock clockwork.Clock, interval time.Duration) *Producer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = commands.SoundSpectrum.DefaultInterval()
	}
	return &Producer{
		queue:    q,
		analyzer: NewAnalyzer(),
		clock:    clock,
		interval: interval,
	}
}

// OnSamples handles one window of mono samples. It reports whether a
// spectrum command was queued.
func (p *Producer) OnSamples(samples []float32, sampleRate int) bool {
	if p.queue.HasPending(commands.SoundSpectrum) {
		p.dropped.Add(1)
		return false
	}

	bars := p.analyzer.Bars(samples, sampleRate)
	cmd := commands.New(
		commands.SoundSpectrum,
		p.clock.Now(),
		p.interval,
		commands.Literal(commands.EncodeSpectrum(bars)),
	)
	if _, ok := p.queue.EnqueueIfAbsent(cmd); !ok {
		p.dropped.Add(1)
		return false
	}
	p.produced.Add(1)
	return true
}

// Stats returns how many buffers were turned into commands and how many
// were dropped because a spectrum was already pending.
func (p *Producer) Stats() (produced, dropped uint64) {
	return p.produced.Load(), p.dropped.Load()
}
