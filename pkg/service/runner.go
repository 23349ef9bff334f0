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

package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/queue"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/transfer"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	ConnectRetryDelay = 1 * time.Second
	PostConnectDelay  = 100 * time.Millisecond
	DispatchPacing    = 50 * time.Millisecond
	TickInterval      = 20 * time.Millisecond
	FaultPause        = 100 * time.Millisecond

	connectLogInterval = 30 * time.Second
)

var ErrAlreadyRunning = errors.New("runner already running")

type RunnerState int32

const (
	StateStopped RunnerState = iota
	StateStarting
	StateRunning
	StateStopRequested
)

func (s RunnerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stopping"
	default:
		return fmt.Sprintf("RunnerState(%d)", int32(s))
	}
}

// Status is a point in time snapshot for the tray and logs.
type Status struct {
	Device       string
	State        RunnerState
	Started      bool
	Connected    bool
	Transferring bool
	Pending      int
}

// Link is the connection lifecycle the runner drives.
type Link interface {
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool
}

// Dispatcher hands dequeued commands to the device.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd commands.Command) error
	Transferring() bool
}

type RunnerOptions struct {
	Clock      clockwork.Clock
	Link       Link
	Queue      *queue.Queue
	Dispatcher Dispatcher
	Interval   IntervalFunc
	// OnConnectionChange, if set, is called from the runner goroutine when
	// the display connects or drops. Stopping the runner does not count as
	// a drop.
	OnConnectionChange func(connected bool)
}

// Runner is the cooperative loop that keeps the display fed. All queue
// draining, refills and telemetry writes happen on its goroutine.
type Runner struct {
	clock      clockwork.Clock
	link       Link
	queue      *queue.Queue
	dispatcher Dispatcher
	interval   IntervalFunc
	onConnect  func(connected bool)
	connectLog *rate.Sometimes
	state      atomic.Int32
	started    atomic.Bool
	connected  bool
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Queue == nil {
		opts.Queue = queue.New()
	}
	return &Runner{
		clock:      opts.Clock,
		link:       opts.Link,
		queue:      opts.Queue,
		dispatcher: opts.Dispatcher,
		interval:   opts.Interval,
		onConnect:  opts.OnConnectionChange,
		connectLog: &rate.Sometimes{First: 1, Interval: connectLogInterval},
	}
}

func (r *Runner) State() RunnerState {
	return RunnerState(r.state.Load())
}

func (r *Runner) Status() Status {
	return Status{
		State:        r.State(),
		Started:      r.started.Load(),
		Connected:    r.link.IsOpen(),
		Transferring: r.dispatcher.Transferring(),
		Pending:      r.queue.Len(),
	}
}

// Run blocks until Stop is called or ctx is cancelled. It may be called
// again after it returns.
func (r *Runner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	r.queue.Clear()
	r.connectLog = &rate.Sometimes{First: 1, Interval: connectLogInterval}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	log.Info().Msg("display runner started")

	for r.State() == StateRunning && ctx.Err() == nil {
		r.safeTick(ctx)
	}

	if err := r.link.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing display link")
	}
	r.connected = false
	r.started.Store(false)
	r.state.Store(int32(StateStopped))
	log.Info().Msg("display runner stopped")
	return nil
}

// Stop asks the loop to exit at the start of its next tick. It does not
// wait and does not cancel image transfers already in flight.
func (r *Runner) Stop() {
	if r.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested)) {
		log.Info().Msg("display runner stop requested")
		return
	}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateStopRequested))
}

func (r *Runner) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("recovered from runner panic")
			r.sleep(ctx, FaultPause)
		}
	}()

	if err := r.tick(ctx); err != nil {
		log.Error().Err(err).Msg("runner tick failed")
		r.sleep(ctx, FaultPause)
	}
}

func (r *Runner) tick(ctx context.Context) error {
	if !r.link.IsOpen() {
		if r.connected {
			r.connected = false
			r.notifyConnection(false)
		}
		if err := r.link.Open(ctx); err != nil {
			r.connectLog.Do(func() {
				log.Warn().Err(err).Msg("display not connected, retrying")
			})
			r.sleep(ctx, ConnectRetryDelay)
			return nil
		}
		r.connected = true
		r.notifyConnection(true)
		r.sleep(ctx, PostConnectDelay)
		r.seed(r.clock.Now())
	}

	for cmd := range r.queue.DrainDue(r.clock.Now()) {
		err := r.dispatcher.Dispatch(ctx, cmd)
		switch {
		case err == nil:
		case errors.Is(err, transfer.ErrBusy):
		case errors.Is(err, transfer.ErrResolve):
			log.Debug().Err(err).Msg("nothing to send")
		default:
			return fmt.Errorf("dispatch %s: %w", cmd.Tag.Name(), err)
		}
		r.sleep(ctx, DispatchPacing)
	}

	r.started.Store(true)
	Refill(r.queue, r.clock.Now(), r.interval)
	r.sleep(ctx, TickInterval)
	return nil
}

func (r *Runner) notifyConnection(connected bool) {
	if r.onConnect != nil {
		r.onConnect(connected)
	}
}

func (r *Runner) seed(now time.Time) {
	for _, tag := range commands.Seed {
		r.queue.Enqueue(commands.New(tag, now, commands.SeedDelay, commands.Deferred()))
	}
	log.Debug().Int("count", len(commands.Seed)).Msg("seeded connection commands")
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-r.clock.After(d):
	case <-ctx.Done():
	}
}
