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

// Package queue implements the scheduled command queue shared by the
// runner and the audio producer.
package queue

import (
	"iter"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/deskdisplay/deskdisplay-core/pkg/helpers/syncutil"
)

// Queue holds pending commands in insertion order. Dispatch order is
// insertion order among due commands, not due-time order, so this is a
// slice and not a heap.
type Queue struct {
	items  []commands.Command
	nextID uint64
	mu     syncutil.Mutex
}

func New() *Queue {
	return &Queue{}
}

// Enqueue appends cmd and returns it with its assigned ID. No dedup is done
// here; callers check HasPending first.
func (q *Queue) Enqueue(cmd commands.Command) commands.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	cmd.ID = q.nextID
	q.items = append(q.items, cmd)
	return cmd
}

// HasPending reports whether any queued command carries tag, due or not.
func (q *Queue) HasPending(tag commands.Tag) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Tag == tag {
			return true
		}
	}
	return false
}

// EnqueueIfAbsent enqueues cmd unless a command with the same tag is
// already pending. The check and the append happen under one lock.
func (q *Queue) EnqueueIfAbsent(cmd commands.Command) (commands.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Tag == cmd.Tag {
			return commands.Command{}, false
		}
	}
	q.nextID++
	cmd.ID = q.nextID
	q.items = append(q.items, cmd)
	return cmd, true
}

// DrainDue yields every command due at now, in insertion order, from a
// snapshot taken when iteration starts. Each command is removed as it is
// handed to the loop body, so a body that panics or breaks never sees the
// same command again while the commands after it stay queued. A command
// removed by someone else after the snapshot is skipped.
func (q *Queue) DrainDue(now time.Time) iter.Seq[commands.Command] {
	return func(yield func(commands.Command) bool) {
		for _, cmd := range q.due(now) {
			if !q.Remove(cmd.ID) {
				continue
			}
			if !yield(cmd) {
				return
			}
		}
	}
}

func (q *Queue) due(now time.Time) []commands.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []commands.Command
	for i := range q.items {
		if q.items[i].Due(now) {
			out = append(out, q.items[i])
		}
	}
	return out
}

// Remove deletes the command with id, keeping the order of the rest.
func (q *Queue) Remove(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queue contents in insertion order.
func (q *Queue) Pending() []commands.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]commands.Command, len(q.items))
	copy(out, q.items)
	return out
}

// Count returns how many queued commands carry tag.
func (q *Queue) Count(tag commands.Tag) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for i := range q.items {
		if q.items[i].Tag == tag {
			n++
		}
	}
	return n
}

// Clear drops every queued command.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
