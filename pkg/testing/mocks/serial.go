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
	"bytes"
	"errors"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
)

// MockSerialPort is an in-memory serial port. Writes are recorded, reads
// return whatever was queued with Feed and never block.
type MockSerialPort struct {
	WriteError error
	ReadError  error
	CloseError error
	TimeoutErr error
	// OnWrite runs after every successful write, outside the port lock, so
	// a test can script device replies with Feed.
	OnWrite     func(data []byte)
	pending     []byte
	writes      [][]byte
	readTimeout time.Duration
	reads       int
	closed      bool
	mu          syncutil.Mutex
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if m.WriteError != nil {
		err := m.WriteError
		m.mu.Unlock()
		return 0, err
	}
	m.writes = append(m.writes, bytes.Clone(p))
	hook := m.OnWrite
	m.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return len(p), nil
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.closed {
		return 0, errors.New("port closed")
	}
	if m.ReadError != nil {
		return 0, m.ReadError
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = t
	return m.TimeoutErr
}

// Feed queues bytes for the next reads.
func (m *MockSerialPort) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data...)
}

// Writes returns a copy of every write call in order.
func (m *MockSerialPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Written returns all written bytes concatenated.
func (m *MockSerialPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Join(m.writes, nil)
}

// WritesWithPrefix counts writes starting with prefix.
func (m *MockSerialPort) WritesWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, w := range m.writes {
		if bytes.HasPrefix(w, []byte(prefix)) {
			count++
		}
	}
	return count
}

// ReadCalls returns how many times Read was called.
func (m *MockSerialPort) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *MockSerialPort) ReadTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readTimeout
}

func (m *MockSerialPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
