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
	"io"
	"sync"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/audio"
	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/device/link"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/deskdisplay/deskdisplay-core/pkg/media"
	"github.com/deskdisplay/deskdisplay-core/pkg/sensors"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/queue"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/transfer"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// StopTimeout bounds how long Stop waits for image and title tasks.
const StopTimeout = 2 * time.Second

var ErrStopped = errors.New("service stopped")

// Deps are the collaborators Start wires together. Nil fields get the
// real implementations.
type Deps struct {
	Clock       clockwork.Clock
	Sensors     sensors.Reader
	Media       media.Provider
	PortFactory link.PortFactory
	Detect      func() ([]string, error)
	Audio       audio.Source
	Chime       audio.Player
	// WatchConfig reloads the config file when it changes on disk.
	WatchConfig bool
}

// Service owns one display runner and everything feeding it.
type Service struct {
	ctx      context.Context
	cfg      *config.Instance
	link     *link.Link
	queue    *queue.Queue
	engine   *transfer.Engine
	runner   *Runner
	producer *audio.Producer
	audio    audio.Source
	chime    audio.Player
	media    media.Provider
	cancel   context.CancelFunc
	group    *errgroup.Group
	runDone  chan struct{}
	done     chan struct{}
	stopErr  error
	stopOnce sync.Once
	mu       syncutil.Mutex
	stopped  bool
}

// Start builds the display pipeline from cfg and starts the runner. Audio
// capture failing to start is logged and the service runs without a
// spectrum.
func Start(cfg *config.Instance, deps Deps) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Sensors == nil {
		deps.Sensors = sensors.NewSystem()
	}
	if deps.Media == nil {
		deps.Media = media.NewDefaultProvider()
	}
	if deps.Detect == nil {
		deps.Detect = helpers.GetSerialDeviceList
	}
	if deps.Chime == nil {
		deps.Chime = &audio.Chime{Sounds: cfg}
	}

	dl := link.New(link.Options{
		Clock:    deps.Clock,
		Factory:  deps.PortFactory,
		Detect:   deps.Detect,
		Port:     cfg.DevicePort(),
		BaudRate: cfg.BaudRate(),
	})
	q := queue.New()
	engine := transfer.New(transfer.Options{
		Clock:   deps.Clock,
		Device:  dl,
		Sensors: deps.Sensors,
		Media:   deps.Media,
	})

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	s := &Service{
		ctx:    gctx,
		cfg:    cfg,
		link:   dl,
		queue:  q,
		engine: engine,
		chime:  deps.Chime,
		media:  deps.Media,
		cancel: cancel,
		group:  group,
		done:   make(chan struct{}),
	}
	s.runner = NewRunner(RunnerOptions{
		Clock:              deps.Clock,
		Link:               dl,
		Queue:              q,
		Dispatcher:         engine,
		Interval:           cfg.Interval,
		OnConnectionChange: s.onConnectionChange,
	})

	if cfg.AudioEnabled() {
		src := deps.Audio
		if src == nil {
			src = audio.NewCapture()
		}
		s.producer = audio.NewProducer(q, deps.Clock, cfg.Interval(commands.SoundSpectrum))
		if err := src.Start(func(mono []float32, rate int) { s.producer.OnSamples(mono, rate) }); err != nil {
			log.Error().Err(err).Msg("audio capture failed to start, continuing without spectrum")
		} else {
			s.audio = src
		}
	}

	if deps.WatchConfig {
		group.Go(func() error {
			if err := cfg.Watch(gctx, s.applyConfig); err != nil {
				log.Warn().Err(err).Msg("config file changes will not be picked up")
			}
			return nil
		})
	}

	s.mu.Lock()
	s.startRunnerLocked()
	s.mu.Unlock()

	log.Info().Msg("service started")
	return s, nil
}

func (s *Service) startRunnerLocked() {
	done := make(chan struct{})
	s.runDone = done
	s.group.Go(func() error {
		defer close(done)
		if err := s.runner.Run(s.ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return fmt.Errorf("display runner: %w", err)
		}
		return nil
	})
}

// Status is a snapshot for the tray.
func (s *Service) Status() Status {
	st := s.runner.Status()
	st.Device = s.link.Device()
	return st
}

// AudioStats returns spectrum buffers queued and dropped since Start.
func (s *Service) AudioStats() (produced, dropped uint64) {
	if s.producer == nil {
		return 0, 0
	}
	return s.producer.Stats()
}

// Pause asks the runner to stop after its current tick and disconnect.
// Image transfers already in flight run to completion.
func (s *Service) Pause() {
	s.runner.Stop()
}

// Resume restarts a paused runner, waiting for a pending pause to finish
// first.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	switch s.runner.State() {
	case StateRunning, StateStarting:
		return ErrAlreadyRunning
	case StateStopped, StateStopRequested:
	}

	select {
	case <-s.runDone:
	case <-s.ctx.Done():
		return ErrStopped
	}
	s.startRunnerLocked()
	return nil
}

// Running reports whether the runner loop is active.
func (s *Service) Running() bool {
	st := s.runner.State()
	return st == StateRunning || st == StateStarting
}

// Done is closed once Stop has finished.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Stop shuts everything down and waits for it. Safe to call repeatedly.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("stopping service")

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.audio != nil {
			if err := s.audio.Stop(); err != nil {
				log.Warn().Err(err).Msg("error stopping audio capture")
			}
		}

		s.runner.Stop()
		s.cancel()
		s.stopErr = s.group.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
		defer cancel()
		if err := s.engine.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("transfer tasks still running at shutdown")
		}

		if err := s.link.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing display link")
		}
		if closer, ok := s.media.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing media session")
			}
		}

		log.Info().Msg("service stopped")
		close(s.done)
	})
	return s.stopErr
}

func (s *Service) onConnectionChange(connected bool) {
	if s.chime == nil || !s.cfg.ChimeEnabled() {
		return
	}
	var err error
	if connected {
		err = s.chime.PlayConnect()
	} else {
		err = s.chime.PlayDisconnect()
	}
	if err != nil {
		log.Warn().Err(err).Bool("connected", connected).Msg("failed to play connection chime")
	}
}

// applyConfig pushes reloaded settings into the running pipeline. Refresh
// intervals are read from the config on every refill and need no action.
func (s *Service) applyConfig() {
	helpers.SetDebugLogging(s.cfg.DebugLogging())
	if err := s.link.Reconfigure(s.cfg.DevicePort(), s.cfg.BaudRate()); err != nil {
		log.Warn().Err(err).Msg("error applying new port settings")
	}
}
