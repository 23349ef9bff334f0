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

	"github.com/stretchr/testify/mock"
)

// MockSensors is a mock implementation of sensors.Reader using testify/mock
type MockSensors struct {
	mock.Mock
}

func (m *MockSensors) CPUTemperature(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return 0, fmt.Errorf("mock operation failed: %w", err)
	}
	v, _ := args.Get(0).(float64)
	return v, nil
}

func (m *MockSensors) GPUTemperature(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return 0, fmt.Errorf("mock operation failed: %w", err)
	}
	v, _ := args.Get(0).(float64)
	return v, nil
}

func (m *MockSensors) Memory(ctx context.Context) (used, total float64, err error) {
	args := m.Called(ctx)
	if err := args.Error(2); err != nil {
		return 0, 0, fmt.Errorf("mock operation failed: %w", err)
	}
	used, _ = args.Get(0).(float64)
	total, _ = args.Get(1).(float64)
	return used, total, nil
}

func (m *MockSensors) OSVersion(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return "", fmt.Errorf("mock operation failed: %w", err)
	}
	return args.String(0), nil
}

func (m *MockSensors) UserName() (string, error) {
	args := m.Called()
	if err := args.Error(1); err != nil {
		return "", fmt.Errorf("mock operation failed: %w", err)
	}
	return args.String(0), nil
}

// NewMockSensors returns sensors reporting a stable, healthy machine.
func NewMockSensors() *MockSensors {
	m := &MockSensors{}
	m.On("CPUTemperature", mock.Anything).Return(45.5, nil).Maybe()
	m.On("GPUTemperature", mock.Anything).Return(38.0, nil).Maybe()
	m.On("Memory", mock.Anything).Return(8.0, 16.0, nil).Maybe()
	m.On("OSVersion", mock.Anything).Return("Windows 10", nil).Maybe()
	m.On("UserName").Return("alex", nil).Maybe()
	return m
}
