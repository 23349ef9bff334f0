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

package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	dbusPropsGet     = "org.freedesktop.DBus.Properties.Get"
	dbusListNames    = "org.freedesktop.DBus.ListNames"

	maxArtworkBytes = 8 * 1024 * 1024
	artworkTimeout  = 5 * time.Second
)

// NewDefaultProvider returns the media provider for the running OS: MPRIS
// on unix desktops, the system media session on Windows.
func NewDefaultProvider() Provider {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return NewMPRIS()
	default:
		return newPlatformProvider()
	}
}

// MPRIS reads the active player over the D-Bus session bus.
type MPRIS struct {
	conn   *dbus.Conn
	client *http.Client
	mu     syncutil.Mutex
}

func NewMPRIS() *MPRIS {
	return &MPRIS{
		client: &http.Client{Timeout: artworkTimeout},
	}
}

func (m *MPRIS) connection(ctx context.Context) (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}

	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	m.conn = conn
	return conn, nil
}

// Close releases the session bus connection.
func (m *MPRIS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close session bus: %w", err)
	}
	return nil
}

func (m *MPRIS) NowPlaying(ctx context.Context) (Track, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return Track{}, err
	}

	var names []string
	err = conn.BusObject().CallWithContext(ctx, dbusListNames, 0).Store(&names)
	if err != nil {
		return Track{}, fmt.Errorf("failed to list bus names: %w", err)
	}

	player := m.pickPlayer(ctx, conn, names)
	if player == "" {
		return Track{Title: NoMediaTitle}, nil
	}

	var md dbus.Variant
	err = conn.Object(player, mprisPath).
		CallWithContext(ctx, dbusPropsGet, 0, mprisPlayerIface, "Metadata").
		Store(&md)
	if err != nil {
		return Track{}, fmt.Errorf("failed to read metadata from %s: %w", player, err)
	}

	values, _ := md.Value().(map[string]dbus.Variant)
	title, artist, artURL := ParseMetadata(values)
	track := Track{Title: FormatTitle(title, artist)}

	if artURL == "" {
		log.Debug().Str("player", player).Msg("no album art available")
		return track, nil
	}

	raw, err := m.fetchArtwork(ctx, artURL)
	if err != nil {
		log.Debug().Err(err).Str("url", artURL).Msg("failed to fetch album art")
		return track, nil
	}

	thumb, err := Thumbnail(raw)
	if err != nil {
		log.Debug().Err(err).Msg("failed to convert album art")
		return track, nil
	}
	track.Image = thumb

	log.Debug().Str("title", track.Title).Int("thumb_bytes", len(thumb)).Msg("read now playing")
	return track, nil
}

// pickPlayer prefers a player that is currently playing, else the first
// MPRIS name on the bus.
func (*MPRIS) pickPlayer(ctx context.Context, conn *dbus.Conn, names []string) string {
	first := ""
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		if first == "" {
			first = name
		}

		var status dbus.Variant
		err := conn.Object(name, mprisPath).
			CallWithContext(ctx, dbusPropsGet, 0, mprisPlayerIface, "PlaybackStatus").
			Store(&status)
		if err != nil {
			continue
		}
		if s, ok := status.Value().(string); ok && s == "Playing" {
			return name
		}
	}
	return first
}

// ParseMetadata extracts the fields the display uses from an MPRIS
// metadata map.
func ParseMetadata(md map[string]dbus.Variant) (title, artist, artURL string) {
	if v, ok := md["xesam:title"]; ok {
		title, _ = v.Value().(string)
	}
	if v, ok := md["xesam:artist"]; ok {
		switch a := v.Value().(type) {
		case []string:
			artist = strings.Join(a, ", ")
		case string:
			artist = a
		}
	}
	if v, ok := md["mpris:artUrl"]; ok {
		artURL, _ = v.Value().(string)
	}
	return title, artist, artURL
}

func (m *MPRIS) fetchArtwork(ctx context.Context, rawURL string) ([]byte, error) {
	return FetchArtwork(ctx, m.client, rawURL)
}

// FetchArtwork loads artwork from a file:// or http(s):// URL.
func FetchArtwork(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid artwork url: %w", err)
	}

	switch u.Scheme {
	case "file":
		//nolint:gosec // G304: path comes from the local media player
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artwork file: %w", err)
		}
		return data, nil
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build artwork request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download artwork: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("artwork download returned %s", resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read artwork body: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported artwork scheme %q", u.Scheme)
	}
}
