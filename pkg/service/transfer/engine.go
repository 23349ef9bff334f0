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

// Package transfer turns dequeued commands into bytes on the display link.
//
// Telemetry lines are written inline on the caller's goroutine. Track title
// and track image commands run as tracked background tasks because they
// talk to the media session, and images additionally go through a
// send/acknowledge/retry exchange with the device. Only one image transfer
// may be in flight at a time; while it is, every other dispatched command
// is dropped.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/device/link"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/deskdisplay/deskdisplay-core/pkg/media"
	"github.com/deskdisplay/deskdisplay-core/pkg/sensors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	// AckWait is how long the device gets to draw an image before its
	// output is checked for the acknowledgment.
	AckWait = 100 * time.Millisecond
	// MaxImageAttempts is the first send plus three retries.
	MaxImageAttempts = 4
)

var (
	// ErrBusy is returned when a command is dropped because an image
	// transfer holds the link.
	ErrBusy = errors.New("image transfer in progress")
	// ErrNoAck means the device never confirmed an image.
	ErrNoAck = errors.New("image not acknowledged")
	// ErrNoResolver means a deferred payload has no data source.
	ErrNoResolver = errors.New("no resolver for deferred payload")
	// ErrResolve wraps every failure to compute a deferred payload. Nothing
	// is written when it is returned.
	ErrResolve = errors.New("payload unavailable")
)

// Device is the part of the display link the engine writes to.
type Device interface {
	IsOpen() bool
	WriteLine(tag commands.Tag, payload string) error
	WriteFrame(tag commands.Tag, body []byte) error
	ReadAvailable() ([]byte, error)
}

type Options struct {
	Clock   clockwork.Clock
	Device  Device
	Sensors sensors.Reader
	Media   media.Provider
	// AckWait and MaxAttempts default to the package constants when zero.
	AckWait     time.Duration
	MaxAttempts int
}

type Engine struct {
	clock       clockwork.Clock
	device      Device
	sensors     sensors.Reader
	media       media.Provider
	permit      *semaphore.Weighted
	lastTitle   string
	tasks       sync.WaitGroup
	ackWait     time.Duration
	maxAttempts int
	pending     atomic.Int64
	mu          syncutil.Mutex
	inFlight    atomic.Bool
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.AckWait <= 0 {
		opts.AckWait = AckWait
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = MaxImageAttempts
	}
	if opts.Media == nil {
		opts.Media = media.Unsupported{}
	}
	return &Engine{
		clock:       opts.Clock,
		device:      opts.Device,
		sensors:     opts.Sensors,
		media:       opts.Media,
		permit:      semaphore.NewWeighted(1),
		ackWait:     opts.AckWait,
		maxAttempts: opts.MaxAttempts,
	}
}

// Transferring reports whether an image transfer currently holds the link.
func (e *Engine) Transferring() bool {
	return e.inFlight.Load()
}

// Pending returns the number of background tasks that have not finished.
func (e *Engine) Pending() int {
	return int(e.pending.Load())
}

// Wait blocks until every background task has finished or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d transfer tasks: %w", e.Pending(), ctx.Err())
	}
}

// LastSentTitle is the title of the last image the device acknowledged.
func (e *Engine) LastSentTitle() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTitle
}

func (e *Engine) setLastSentTitle(title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTitle = title
}

// Dispatch handles one command that has already left the queue. Dropped
// commands are not requeued; the refill pass schedules the next one.
func (e *Engine) Dispatch(ctx context.Context, cmd commands.Command) error {
	if e.inFlight.Load() {
		log.Debug().Str("tag", cmd.Tag.Name()).Msg("dropping command during image transfer")
		return ErrBusy
	}

	switch {
	case cmd.Tag == commands.TrackImage && cmd.Payload.IsDeferred():
		e.spawn(ctx, "image", e.imageTask)
		return nil
	case cmd.Tag == commands.TrackTitle && cmd.Payload.IsDeferred():
		e.spawn(ctx, "title", e.titleTask)
		return nil
	}

	payload, err := e.resolve(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrResolve, cmd.Tag.Name(), err)
	}
	if err := e.device.WriteLine(cmd.Tag, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Tag.Name(), err)
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, cmd commands.Command) (string, error) {
	if !cmd.Payload.IsDeferred() {
		return cmd.Payload.Value(), nil
	}
	if e.sensors == nil {
		return "", ErrNoResolver
	}

	switch cmd.Tag {
	case commands.CPUTemperature:
		v, err := e.sensors.CPUTemperature(ctx)
		if err != nil {
			return "", err
		}
		return sensors.FormatTemperature(v), nil
	case commands.GPUTemperature:
		v, err := e.sensors.GPUTemperature(ctx)
		if err != nil {
			return "", err
		}
		return sensors.FormatTemperature(v), nil
	case commands.RAMUsage:
		used, total, err := e.sensors.Memory(ctx)
		if err != nil {
			return "", err
		}
		return sensors.FormatMemory(used, total), nil
	case commands.OSVersion:
		return e.sensors.OSVersion(ctx)
	case commands.UserIdentity:
		return e.sensors.UserName()
	default:
		return "", ErrNoResolver
	}
}

// spawn runs fn as a tracked task. Tasks outlive a stop request so a
// transfer that already started is allowed to finish.
func (e *Engine) spawn(ctx context.Context, name string, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	e.pending.Add(1)
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer e.pending.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("task", name).Msg("recovered from transfer task panic")
			}
		}()
		fn(ctx)
	}()
}

func (e *Engine) titleTask(ctx context.Context) {
	track, err := e.media.NowPlaying(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("no track title")
		return
	}
	if track.Title == "" {
		return
	}
	if err := e.device.WriteLine(commands.TrackTitle, commands.TruncateTitle(track.Title)); err != nil {
		log.Warn().Err(err).Msg("failed to send track title")
	}
}

func (e *Engine) imageTask(ctx context.Context) {
	track, err := e.media.NowPlaying(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("no track image")
		return
	}
	if len(track.Image) == 0 || track.Title == e.LastSentTitle() {
		return
	}

	if err := e.permit.Acquire(ctx, 1); err != nil {
		return
	}
	e.inFlight.Store(true)
	defer func() {
		e.inFlight.Store(false)
		e.permit.Release(1)
	}()

	// a task queued behind the permit may find its track already sent
	if track.Title == e.LastSentTitle() {
		return
	}

	attempts, err := e.SendImage(ctx, track.Image)
	if err != nil {
		log.Warn().Err(err).Int("attempts", attempts).Str("title", track.Title).Msg("image transfer failed")
		return
	}
	e.setLastSentTitle(track.Title)
	log.Debug().Int("attempts", attempts).Int("bytes", len(track.Image)).Msg("image drawn")
}

// SendImage writes body as an image frame and waits for the device to
// confirm it, resending until MaxAttempts frames have gone out. The marker
// is matched against everything read during the transfer, so an ack split
// across two reads still counts. Callers must hold the transfer permit.
func (e *Engine) SendImage(ctx context.Context, body []byte) (int, error) {
	marker := []byte(commands.ImageAckMarker)
	var seen []byte
	for attempt := 1; ; attempt++ {
		if !e.device.IsOpen() {
			return attempt - 1, link.ErrNotOpen
		}
		if err := e.device.WriteFrame(commands.TrackImage, body); err != nil {
			return attempt, fmt.Errorf("failed to write image frame: %w", err)
		}

		select {
		case <-e.clock.After(e.ackWait):
		case <-ctx.Done():
			return attempt, fmt.Errorf("image transfer interrupted: %w", ctx.Err())
		}

		resp, err := e.device.ReadAvailable()
		if err != nil {
			return attempt, fmt.Errorf("failed to read image ack: %w", err)
		}
		seen = append(seen, resp...)
		if bytes.Contains(seen, marker) {
			return attempt, nil
		}
		// only a partial marker can still complete on a later read
		if keep := len(marker) - 1; len(seen) > keep {
			seen = append(seen[:0], seen[len(seen)-keep:]...)
		}
		if len(resp) > 0 {
			log.Debug().Int("attempt", attempt).Bytes("response", resp).Msg("unexpected image response")
		}
		if attempt >= e.maxAttempts {
			return attempt, ErrNoAck
		}
	}
}
