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
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/service/queue"
)

// IntervalFunc returns the refresh interval configured for a tag.
type IntervalFunc func(tag commands.Tag) time.Duration

// Refill schedules the first periodic tag, in catalog priority order, that
// has nothing pending. At most one command is added per call so a freshly
// emptied queue fills back up over consecutive ticks.
func Refill(q *queue.Queue, now time.Time, interval IntervalFunc) (commands.Command, bool) {
	for _, tag := range commands.Periodic {
		if q.HasPending(tag) {
			continue
		}
		delay := tag.DefaultInterval()
		if interval != nil {
			delay = interval(tag)
		}
		return q.Enqueue(commands.New(tag, now, delay, commands.Deferred())), true
	}
	return commands.Command{}, false
}
