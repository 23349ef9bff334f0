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

// Package link owns the serial connection to the display. Every write and
// read goes through a Link, which is a silent no-op while the port is
// closed so late writers never fault after a stop.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// SettleInterval is how long a freshly opened port is left alone so the
	// board can finish its reset after DTR toggles.
	SettleInterval = 200 * time.Millisecond
	// ReadTimeout bounds each Read so ReadAvailable never blocks for long.
	ReadTimeout = 10 * time.Millisecond
	// AutoPort selects the first detected serial device.
	AutoPort = "auto"

	maxReadAvailable = 64 * 1024
)

var (
	ErrNoDevice = errors.New("no serial device found")
	ErrNotOpen  = errors.New("link not open")
)

// Port is the subset of serial.Port the link needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// PortFactory opens a port. Tests swap it for a mock.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory opens a real serial port.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Options configure a Link. Zero values fall back to defaults.
type Options struct {
	Clock       clockwork.Clock
	Factory     PortFactory
	Detect      func() ([]string, error)
	Port        string
	BaudRate    int
	Settle      time.Duration
	ReadTimeout time.Duration
}

// Link is the single connection to the display device.
type Link struct {
	port        Port
	clock       clockwork.Clock
	factory     PortFactory
	detect      func() ([]string, error)
	portName    string
	path        string
	baudRate    int
	settle      time.Duration
	readTimeout time.Duration
	mu          syncutil.Mutex
}

func New(opts Options) *Link {
	l := &Link{
		clock:       opts.Clock,
		factory:     opts.Factory,
		detect:      opts.Detect,
		portName:    opts.Port,
		baudRate:    opts.BaudRate,
		settle:      opts.Settle,
		readTimeout: opts.ReadTimeout,
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.factory == nil {
		l.factory = DefaultPortFactory
	}
	if l.detect == nil {
		l.detect = func() ([]string, error) { return nil, nil }
	}
	if l.baudRate == 0 {
		l.baudRate = 921600
	}
	if l.settle == 0 {
		l.settle = SettleInterval
	}
	if l.readTimeout == 0 {
		l.readTimeout = ReadTimeout
	}
	return l
}

// Reconfigure changes the port and baud rate used by the next Open. An
// open connection to a different port or at a different rate is closed so
// the caller's reconnect picks up the new settings.
func (l *Link) Reconfigure(port string, baudRate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if baudRate <= 0 {
		baudRate = l.baudRate
	}
	if port == l.portName && baudRate == l.baudRate {
		return nil
	}
	l.portName = port
	l.baudRate = baudRate
	log.Info().Str("port", port).Int("baud", baudRate).Msg("display link reconfigured")
	return l.closeLocked()
}

func (l *Link) resolvePath() (string, error) {
	l.mu.Lock()
	name := strings.TrimSpace(l.portName)
	l.mu.Unlock()
	if name != "" && !strings.EqualFold(name, AutoPort) {
		return name, nil
	}

	ports, err := l.detect()
	if err != nil {
		return "", fmt.Errorf("failed to list serial devices: %w", err)
	}
	if len(ports) == 0 {
		return "", ErrNoDevice
	}
	log.Debug().Strs("ports", ports).Msg("auto-detected serial devices")
	return ports[0], nil
}

// Open connects to the configured port. It is a no-op if already open and
// returns only after the settle interval has passed.
func (l *Link) Open(ctx context.Context) error {
	if l.IsOpen() {
		return nil
	}

	path, err := l.resolvePath()
	if err != nil {
		return err
	}

	l.mu.Lock()
	baudRate := l.baudRate
	l.mu.Unlock()

	port, err := l.factory(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return err
	}

	if err := port.SetReadTimeout(l.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	select {
	case <-l.clock.After(l.settle):
	case <-ctx.Done():
		_ = port.Close()
		return fmt.Errorf("open cancelled while settling: %w", ctx.Err())
	}

	l.mu.Lock()
	l.port = port
	l.path = path
	l.mu.Unlock()

	log.Info().Str("device", path).Int("baud", baudRate).Msg("display connected")
	return nil
}

// Close drops the connection without flushing. Safe to call repeatedly.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Link) closeLocked() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	log.Info().Str("device", l.path).Msg("display disconnected")
	if err != nil {
		return fmt.Errorf("failed to close port: %w", err)
	}
	return nil
}

// IsOpen is the single source of truth for "connected".
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// Device returns the path of the last opened port.
func (l *Link) Device() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// WriteLine sends <tag><payload>\n. Nothing is written while closed.
func (l *Link) WriteLine(tag commands.Tag, payload string) error {
	return l.write(commands.EncodeText(tag, payload))
}

// WriteFrame sends a length-prefixed binary frame in a single write so it
// cannot interleave with text lines from other goroutines.
func (l *Link) WriteFrame(tag commands.Tag, body []byte) error {
	return l.write(commands.EncodeFrame(tag, body))
}

func (l *Link) write(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}

	n, err := l.port.Write(data)
	if err != nil {
		l.handleErrorLocked(err)
		return fmt.Errorf("failed to write to port: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes: %w", n, len(data), io.ErrShortWrite)
	}
	return nil
}

// ReadAvailable returns whatever the device has already sent, without
// waiting for a delimiter. It returns nil while closed.
func (l *Link) ReadAvailable() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil, nil
	}

	var out []byte
	buf := make([]byte, 1024)
	for len(out) < maxReadAvailable {
		n, err := l.port.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			l.handleErrorLocked(err)
			return out, fmt.Errorf("failed to read from port: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func (l *Link) handleErrorLocked(err error) {
	if !IsDisconnection(err) {
		return
	}
	log.Info().Err(err).Str("device", l.path).Msg("display link lost")
	_ = l.closeLocked()
}

// IsDisconnection reports whether err means the device went away rather
// than a transient or configuration problem.
func IsDisconnection(err error) bool {
	if err == nil {
		return false
	}

	// the library returns both pointer and value PortErrors depending on OS
	var portErrPtr *serial.PortError
	var portErr serial.PortError
	switch {
	case errors.As(err, &portErrPtr):
		return disconnectCode(portErrPtr.Code())
	case errors.As(err, &portErr):
		return disconnectCode(portErr.Code())
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "input/output error") ||
		strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "device not found") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "port closed") ||
		strings.Contains(msg, "access is denied")
}

func disconnectCode(code serial.PortErrorCode) bool {
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}
