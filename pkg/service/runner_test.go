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
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/queue"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/transfer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	openErr error
	opens   atomic.Int32
	closes  atomic.Int32
	open    atomic.Bool
}

func (l *fakeLink) Open(context.Context) error {
	l.opens.Add(1)
	if l.openErr != nil {
		return l.openErr
	}
	l.open.Store(true)
	return nil
}

func (l *fakeLink) Close() error {
	l.closes.Add(1)
	l.open.Store(false)
	return nil
}

func (l *fakeLink) IsOpen() bool {
	return l.open.Load()
}

type recordingDispatcher struct {
	fn   func(commands.Command) error
	cmds []commands.Command
	mu   syncutil.Mutex
}

func (d *recordingDispatcher) Dispatch(_ context.Context, cmd commands.Command) error {
	d.mu.Lock()
	d.cmds = append(d.cmds, cmd)
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		return fn(cmd)
	}
	return nil
}

func (*recordingDispatcher) Transferring() bool {
	return false
}

func (d *recordingDispatcher) tags() []commands.Tag {
	d.mu.Lock()
	defer d.mu.Unlock()
	tags := make([]commands.Tag, 0, len(d.cmds))
	for _, c := range d.cmds {
		tags = append(tags, c.Tag)
	}
	return tags
}

func pendingTags(q *queue.Queue) []commands.Tag {
	var tags []commands.Tag
	for _, c := range q.Pending() {
		tags = append(tags, c.Tag)
	}
	return tags
}

type runnerEnv struct {
	clock      *clockwork.FakeClock
	link       *fakeLink
	queue      *queue.Queue
	dispatcher *recordingDispatcher
	runner     *Runner
}

func newRunnerEnv() *runnerEnv {
	env := &runnerEnv{
		clock:      clockwork.NewFakeClock(),
		link:       &fakeLink{},
		queue:      queue.New(),
		dispatcher: &recordingDispatcher{},
	}
	env.runner = NewRunner(RunnerOptions{
		Clock:      env.clock,
		Link:       env.link,
		Queue:      env.queue,
		Dispatcher: env.dispatcher,
	})
	return env
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTick_ConnectFailureWaitsBeforeRetry(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.openErr = errors.New("no such port")
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- env.runner.tick(ctx) }()

	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	select {
	case <-done:
		t.Fatal("tick returned before the retry delay")
	default:
	}
	env.clock.Advance(ConnectRetryDelay)

	require.NoError(t, <-done)
	assert.Equal(t, int32(1), env.link.opens.Load())
	assert.Zero(t, env.queue.Len())
	assert.False(t, env.runner.Status().Started)
}

func TestTick_SeedsAfterConnect(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- env.runner.tick(ctx) }()

	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	assert.Zero(t, env.queue.Len(), "seeding happens after the post-connect pause")
	env.clock.Advance(PostConnectDelay)

	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(TickInterval)
	require.NoError(t, <-done)

	// seeds are not due yet, refill adds the first periodic tag not seeded
	assert.Equal(t, []commands.Tag{
		commands.UserIdentity,
		commands.OSVersion,
		commands.CPUTemperature,
		commands.GPUTemperature,
		commands.RAMUsage,
		commands.TrackImage,
	}, pendingTags(env.queue))
	assert.Empty(t, env.dispatcher.tags())
	assert.True(t, env.runner.Status().Started)

	for _, c := range env.queue.Pending()[:len(commands.Seed)] {
		assert.True(t, c.Payload.IsDeferred())
		assert.Equal(t, env.clock.Now().Add(-TickInterval).Add(commands.SeedDelay), c.DueAt)
	}
}

func TestTick_DrainsInInsertionOrderWithPacing(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.open.Store(true)
	ctx := testContext(t)

	now := env.clock.Now()
	env.queue.Enqueue(commands.New(commands.RAMUsage, now, 0, commands.Literal("1.0 / 2GB")))
	env.queue.Enqueue(commands.New(commands.GPUTemperature, now, time.Hour, commands.Literal("40C")))
	env.queue.Enqueue(commands.New(commands.UserIdentity, now.Add(-time.Second), 0, commands.Literal("alex")))
	env.queue.Enqueue(commands.New(commands.SoundSpectrum, now, 0, commands.Literal("1,2,3")))

	done := make(chan error, 1)
	go func() { done <- env.runner.tick(ctx) }()

	for i := 1; i <= 3; i++ {
		require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
		assert.Len(t, env.dispatcher.tags(), i)
		env.clock.Advance(DispatchPacing)
	}
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(TickInterval)
	require.NoError(t, <-done)

	assert.Equal(t, []commands.Tag{
		commands.RAMUsage,
		commands.UserIdentity,
		commands.SoundSpectrum,
	}, env.dispatcher.tags())
	assert.Equal(t, []commands.Tag{
		commands.GPUTemperature,
		commands.CPUTemperature,
	}, pendingTags(env.queue))
}

func TestTick_DroppedCommandsAreNotRequeued(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.open.Store(true)
	env.dispatcher.fn = func(commands.Command) error { return transfer.ErrBusy }
	ctx := testContext(t)

	now := env.clock.Now()
	env.queue.Enqueue(commands.New(commands.TrackTitle, now, 0, commands.Deferred()))
	env.queue.Enqueue(commands.New(commands.SoundSpectrum, now, 0, commands.Literal("0")))

	done := make(chan error, 1)
	go func() { done <- env.runner.tick(ctx) }()
	for range 2 {
		require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
		env.clock.Advance(DispatchPacing)
	}
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(TickInterval)
	require.NoError(t, <-done)

	assert.Len(t, env.dispatcher.tags(), 2)
	assert.Zero(t, env.queue.Count(commands.SoundSpectrum))
	assert.Zero(t, env.queue.Count(commands.TrackTitle))
}

func TestTick_WriteFailureEndsTick(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.open.Store(true)
	env.dispatcher.fn = func(commands.Command) error { return errors.New("write failed") }

	now := env.clock.Now()
	env.queue.Enqueue(commands.New(commands.CPUTemperature, now, 0, commands.Literal("40C")))
	second := env.queue.Enqueue(commands.New(commands.GPUTemperature, now, 0, commands.Literal("41C")))

	err := env.runner.tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, []commands.Tag{commands.CPUTemperature}, env.dispatcher.tags())
	require.Equal(t, 1, env.queue.Len())
	assert.Equal(t, second.ID, env.queue.Pending()[0].ID)
}

func TestSafeTick_RecoversFromPanic(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.open.Store(true)
	env.dispatcher.fn = func(cmd commands.Command) error {
		if cmd.Tag == commands.UserIdentity {
			panic("sensor driver crashed")
		}
		return nil
	}
	ctx := testContext(t)

	now := env.clock.Now()
	env.queue.Enqueue(commands.New(commands.UserIdentity, now, 0, commands.Deferred()))
	env.queue.Enqueue(commands.New(commands.RAMUsage, now, 0, commands.Deferred()))

	done := make(chan struct{})
	go func() {
		env.runner.safeTick(ctx)
		close(done)
	}()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(FaultPause)
	<-done

	assert.Equal(t, []commands.Tag{commands.RAMUsage}, pendingTags(env.queue),
		"the crashing command is gone, the rest stay queued")

	// the next tick moves on: RAM goes out and refill runs again
	done2 := make(chan struct{})
	go func() {
		env.runner.safeTick(ctx)
		close(done2)
	}()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(DispatchPacing)
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(TickInterval)
	<-done2

	assert.Equal(t, []commands.Tag{commands.UserIdentity, commands.RAMUsage}, env.dispatcher.tags())
	assert.Equal(t, []commands.Tag{commands.CPUTemperature}, pendingTags(env.queue))
}

func TestRun_StopAndRestart(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.openErr = errors.New("no such port")
	ctx := testContext(t)

	for range 2 {
		done := make(chan error, 1)
		go func() { done <- env.runner.Run(ctx) }()

		require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, StateRunning, env.runner.State())

		env.runner.Stop()
		assert.Equal(t, StateStopRequested, env.runner.State())
		env.clock.Advance(ConnectRetryDelay)

		require.NoError(t, <-done)
		assert.Equal(t, StateStopped, env.runner.State())
		assert.False(t, env.runner.Status().Started)
	}
	assert.Equal(t, int32(2), env.link.closes.Load())
}

func TestRun_AlreadyRunning(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.openErr = errors.New("no such port")
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- env.runner.Run(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	require.ErrorIs(t, env.runner.Run(ctx), ErrAlreadyRunning)

	env.runner.Stop()
	env.clock.Advance(ConnectRetryDelay)
	require.NoError(t, <-done)
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.openErr = errors.New("no such port")
	ctx, cancel := context.WithCancel(testContext(t))

	done := make(chan error, 1)
	go func() { done <- env.runner.Run(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, env.runner.State())
}

func TestRun_ClearsQueueOnStart(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.openErr = errors.New("no such port")
	env.queue.Enqueue(commands.New(commands.CPUTemperature, env.clock.Now(), 0, commands.Deferred()))
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- env.runner.Run(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	assert.Zero(t, env.queue.Len())

	env.runner.Stop()
	env.clock.Advance(ConnectRetryDelay)
	require.NoError(t, <-done)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	env.link.open.Store(true)
	env.queue.Enqueue(commands.New(commands.CPUTemperature, env.clock.Now(), 0, commands.Deferred()))

	st := env.runner.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.True(t, st.Connected)
	assert.False(t, st.Transferring)
	assert.Equal(t, 1, st.Pending)
}

func TestRunnerState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopRequested.String())
	assert.Equal(t, "RunnerState(9)", RunnerState(9).String())
}

func TestTick_ReportsConnectionChanges(t *testing.T) {
	t.Parallel()
	env := newRunnerEnv()
	var events []bool
	env.runner.onConnect = func(connected bool) { events = append(events, connected) }
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() { done <- env.runner.tick(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(PostConnectDelay)
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(TickInterval)
	require.NoError(t, <-done)

	// cable pulled: the next tick notices before trying to reconnect
	env.link.open.Store(false)
	env.link.openErr = errors.New("no such port")
	go func() { done <- env.runner.tick(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(ConnectRetryDelay)
	require.NoError(t, <-done)

	// still down, no repeated notification
	go func() { done <- env.runner.tick(ctx) }()
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(ConnectRetryDelay)
	require.NoError(t, <-done)

	assert.Equal(t, []bool{true, false}, events)
}
