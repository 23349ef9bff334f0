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

	"github.com/rs/zerolog/log"
)

// SessionInfo is what the operating system's media session reports about
// the current track. Artwork is the raw thumbnail in whatever format the
// player supplied.
type SessionInfo struct {
	Title   string
	Artist  string
	Artwork []byte
}

// sessionReader reads the current OS media session. ok is false when no
// player has a session open.
type sessionReader interface {
	Current(ctx context.Context) (info SessionInfo, ok bool, err error)
}

// SystemSession is the provider for platforms with a system wide media
// session, such as the Windows media transport controls.
type SystemSession struct {
	reader sessionReader
}

func (s *SystemSession) NowPlaying(ctx context.Context) (Track, error) {
	info, ok, err := s.reader.Current(ctx)
	if err != nil {
		return Track{}, err
	}
	if !ok {
		return Track{Title: NoMediaTitle}, nil
	}

	track := Track{Title: FormatTitle(info.Title, info.Artist)}
	if len(info.Artwork) == 0 {
		log.Debug().Str("title", track.Title).Msg("no album art available")
		return track, nil
	}

	thumb, err := Thumbnail(info.Artwork)
	if err != nil {
		log.Debug().Err(err).Msg("failed to convert album art")
		return track, nil
	}
	track.Image = thumb
	return track, nil
}
