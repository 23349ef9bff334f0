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

// Package media inspects the desktop media session for the track title and
// album art shown on the display.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // artwork decoders
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// NoMediaTitle is reported when no player is running.
	NoMediaTitle = "No media"
	// ThumbnailSize is the square edge of the image slot on the display.
	ThumbnailSize = 150
	// ThumbnailQuality keeps the JPEG small enough for one serial frame
	// without visible artifacts on a 150px panel.
	ThumbnailQuality = 95
)

var ErrUnsupported = errors.New("media sessions not supported on this platform")

// Track is what is currently playing. Image is a ready to send baseline
// JPEG and may be empty.
type Track struct {
	Title string
	Image []byte
}

// Provider is the media session collaborator.
type Provider interface {
	NowPlaying(ctx context.Context) (Track, error)
}

// FormatTitle joins title and artist the way the display shows them.
func FormatTitle(title, artist string) string {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	switch {
	case title == "" && artist == "":
		return ""
	case artist == "":
		return title
	case title == "":
		return artist
	default:
		return title + " - " + artist
	}
}

// Thumbnail decodes artwork in any supported format and re-encodes it as a
// ThumbnailSize square baseline RGB JPEG on a black background. The
// firmware decoder rejects progressive JPEGs and alpha channels.
func Thumbnail(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artwork: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, ThumbnailSize, ThumbnailSize))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode %s artwork as jpeg: %w", format, err)
	}
	return out.Bytes(), nil
}

// Unsupported is the provider used where no media session API exists. It
// always reports that nothing is playing.
type Unsupported struct{}

func (Unsupported) NowPlaying(context.Context) (Track, error) {
	return Track{}, ErrUnsupported
}
