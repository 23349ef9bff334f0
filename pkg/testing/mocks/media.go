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
	"context"
	"fmt"

	"github.com/deskdisplay/deskdisplay-core/pkg/media"
	"github.com/stretchr/testify/mock"
)

// MockMediaProvider is a mock implementation of media.Provider using testify/mock
type MockMediaProvider struct {
	mock.Mock
}

func (m *MockMediaProvider) NowPlaying(ctx context.Context) (media.Track, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return media.Track{}, fmt.Errorf("mock operation failed: %w", err)
	}
	if t, ok := args.Get(0).(media.Track); ok {
		return t, nil
	}
	return media.Track{}, nil
}

// NewMockMediaProvider returns a provider that always reports track.
func NewMockMediaProvider(track media.Track) *MockMediaProvider {
	m := &MockMediaProvider{}
	m.On("NowPlaying", mock.Anything).Return(track, nil).Maybe()
	return m
}
