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

// Package telemetry sends opt-in error reports to Sentry. Reports carry a
// random device id and never the account name, host name, home directory
// or USB serial numbers of the display.
package telemetry

import (
	"fmt"
	"os"
	"os/user"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/config"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

// Options configures error reporting. Nothing is sent unless Enabled is
// set and DSN is not empty.
type Options struct {
	Tags       map[string]string
	DSN        string
	DeviceID   string
	AppVersion string
	// Redact lists literal strings replaced in every report, such as the
	// account name the display shows.
	Redact  []string
	Enabled bool
}

// OptionsFromConfig reads the reporting settings from cfg and collects the
// local names that must not leave the machine.
func OptionsFromConfig(cfg *config.Instance) Options {
	on, dsn := cfg.ErrorReporting()
	return Options{
		Enabled:    on,
		DSN:        dsn,
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
		Redact:     localNames(),
		Tags: map[string]string{
			"audio": strconv.FormatBool(cfg.AudioEnabled()),
			"chime": strconv.FormatBool(cfg.ChimeEnabled()),
		},
	}
}

func localNames() []string {
	var names []string
	if u, err := user.Current(); err == nil {
		names = append(names, u.Username)
		if _, short, ok := strings.Cut(u.Username, `\`); ok {
			names = append(names, short)
		}
	}
	if host, err := os.Hostname(); err == nil {
		names = append(names, host)
	}
	return names
}

type reporter struct {
	writer   *sentryzerolog.Writer
	redactor *redactor
	closed   bool
}

var (
	mu      syncutil.Mutex
	current *reporter
)

// Init starts Sentry and tees error level logs to it. It is a no-op unless
// opts enables reporting.
func Init(opts Options) error {
	if !opts.Enabled || opts.DSN == "" {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	r := &reporter{redactor: newRedactor(opts.Redact)}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Release:          config.AppName + "@" + opts.AppVersion,
		Environment:      runtime.GOOS,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		MaxBreadcrumbs:   0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return r.redactor.event(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: opts.DeviceID})
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTags(opts.Tags)
	})

	r.writer, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:       []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout: flushTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry log writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(helpers.LogWriter(), r.writer)).
		With().Timestamp().Caller().Logger()

	mu.Lock()
	current = r
	mu.Unlock()

	log.Info().Str("device_id", opts.DeviceID).Msg("error reporting enabled")
	return nil
}

// Close sends what is still queued and detaches the log writer. Later
// calls do nothing.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if current == nil || current.closed {
		return
	}
	current.closed = true
	_ = current.writer.Close()
	sentry.Flush(flushTimeout)
}

// Flush waits for queued reports, for use right before the process exits.
func Flush() {
	if Enabled() {
		sentry.Flush(flushTimeout)
	}
}

func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return current != nil && !current.closed
}

type redactRule struct {
	re   *regexp.Regexp
	with string
}

var pathRules = []redactRule{
	{regexp.MustCompile(`(?i)/home/[^/]+/`), "/home/<user>/"},
	{regexp.MustCompile(`(?i)/Users/[^/]+/`), "/Users/<user>/"},
	{regexp.MustCompile(`(?i)[a-z]:\\Users\\[^\\]+\\`), `C:\Users\<user>\`},
	// by-id names embed the adapter's USB serial number
	{regexp.MustCompile(`/dev/serial/by-id/[^\s:"']+`), "/dev/serial/by-id/<device>"},
}

// redactor scrubs identifying text out of Sentry events.
type redactor struct {
	names *strings.Replacer
}

func newRedactor(names []string) *redactor {
	var pairs []string
	for _, n := range names {
		// very short names would mangle unrelated words
		if len(n) >= 3 {
			pairs = append(pairs, n, "<redacted>")
		}
	}
	r := &redactor{}
	if len(pairs) > 0 {
		r.names = strings.NewReplacer(pairs...)
	}
	return r
}

func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	for _, rule := range pathRules {
		s = rule.re.ReplaceAllString(s, rule.with)
	}
	if r.names != nil {
		s = r.names.Replace(s)
	}
	return s
}

func (r *redactor) event(event *sentry.Event) *sentry.Event {
	event.ServerName = ""
	event.User = sentry.User{ID: event.User.ID}
	event.Message = r.text(event.Message)

	for i := range event.Exception {
		ex := &event.Exception[i]
		ex.Value = r.text(ex.Value)
		if ex.Stacktrace == nil {
			continue
		}
		for j := range ex.Stacktrace.Frames {
			f := &ex.Stacktrace.Frames[j]
			f.AbsPath = r.text(f.AbsPath)
			f.Filename = r.text(f.Filename)
		}
	}
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = r.text(s)
		}
	}
	for k, v := range event.Tags {
		event.Tags[k] = r.text(v)
	}
	return event
}
