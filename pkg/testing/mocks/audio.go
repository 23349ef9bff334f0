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

package mocks

import (
	"fmt"

	"github.com/deskdisplay/deskdisplay-core/pkg/audio"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/stretchr/testify/mock"
)

// MockPlayer is a mock implementation of audio.Player using testify/mock
type MockPlayer struct {
	mock.Mock
}

func (m *MockPlayer) PlayConnect() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

func (m *MockPlayer) PlayDisconnect() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// NewMockPlayer returns a player that accepts any number of plays.
func NewMockPlayer() *MockPlayer {
	m := &MockPlayer{}
	m.On("PlayConnect").Return(nil).Maybe()
	m.On("PlayDisconnect").Return(nil).Maybe()
	return m
}

// FakeSource is an audio.Source driven by the test through Emit.
type FakeSource struct {
	StartError error
	onSamples  audio.SampleFunc
	mu         syncutil.Mutex
	started    bool
	stopped    bool
}

func (f *FakeSource) Start(onSamples audio.SampleFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartError != nil {
		return f.StartError
	}
	f.onSamples = onSamples
	f.started = true
	return nil
}

func (f *FakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.onSamples = nil
	return nil
}

// Emit delivers one buffer as the capture callback would. It does nothing
// before Start or after Stop.
func (f *FakeSource) Emit(mono []float32, sampleRate int) {
	f.mu.Lock()
	fn := f.onSamples
	f.mu.Unlock()
	if fn != nil {
		fn(mono, sampleRate)
	}
}

func (f *FakeSource) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeSource) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
