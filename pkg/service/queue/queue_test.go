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

package queue

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/deskdisplay/deskdisplay-core/pkg/device/commands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func tagsOf(cmds []commands.Command) []commands.Tag {
	out := make([]commands.Tag, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Tag)
	}
	return out
}

func TestEnqueue_AssignsIDs(t *testing.T) {
	t.Parallel()

	q := New()
	a := q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	b := q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, q.Len(), "enqueue does not dedup")
}

func TestHasPending_IgnoresDueTime(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.TrackImage, epoch, time.Hour, commands.Deferred()))

	assert.True(t, q.HasPending(commands.TrackImage))
	assert.False(t, q.HasPending(commands.TrackTitle))
}

func TestEnqueueIfAbsent(t *testing.T) {
	t.Parallel()

	q := New()
	_, ok := q.EnqueueIfAbsent(commands.New(commands.SoundSpectrum, epoch, 0, commands.Literal("1,2")))
	require.True(t, ok)
	_, ok = q.EnqueueIfAbsent(commands.New(commands.SoundSpectrum, epoch, 0, commands.Literal("3,4")))
	assert.False(t, ok)
	assert.Equal(t, 1, q.Count(commands.SoundSpectrum))
}

func TestDrainDue_InsertionOrderNotDueOrder(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.RAMUsage, epoch, 3*time.Second, commands.Deferred()))
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 1*time.Second, commands.Deferred()))
	q.Enqueue(commands.New(commands.TrackImage, epoch, 10*time.Second, commands.Deferred()))
	q.Enqueue(commands.New(commands.GPUTemperature, epoch, 2*time.Second, commands.Deferred()))

	got := slices.Collect(q.DrainDue(epoch.Add(5 * time.Second)))

	assert.Equal(t,
		[]commands.Tag{commands.RAMUsage, commands.CPUTemperature, commands.GPUTemperature},
		tagsOf(got),
	)
	remaining := q.Pending()
	require.Len(t, remaining, 1)
	assert.Equal(t, commands.TrackImage, remaining[0].Tag)
}

func TestDrainDue_RemovesAfterHandoff(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	q.Enqueue(commands.New(commands.GPUTemperature, epoch, 0, commands.Deferred()))

	for cmd := range q.DrainDue(epoch) {
		// still queued while being handled
		assert.True(t, q.HasPending(cmd.Tag))
	}
	assert.Equal(t, 0, q.Len())
}

func TestDrainDue_BreakLeavesRemainder(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	q.Enqueue(commands.New(commands.GPUTemperature, epoch, 0, commands.Deferred()))
	q.Enqueue(commands.New(commands.RAMUsage, epoch, 0, commands.Deferred()))

	for cmd := range q.DrainDue(epoch) {
		if cmd.Tag == commands.GPUTemperature {
			break
		}
	}

	assert.Equal(t, []commands.Tag{commands.RAMUsage}, tagsOf(q.Pending()))
}

func TestDrainDue_PanicRemovesCurrentOnly(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	q.Enqueue(commands.New(commands.GPUTemperature, epoch, 0, commands.Deferred()))
	q.Enqueue(commands.New(commands.RAMUsage, epoch, 0, commands.Deferred()))

	assert.Panics(t, func() {
		for cmd := range q.DrainDue(epoch) {
			if cmd.Tag == commands.GPUTemperature {
				panic("boom")
			}
		}
	})
	assert.Equal(t, []commands.Tag{commands.RAMUsage}, tagsOf(q.Pending()))

	var next []commands.Tag
	for cmd := range q.DrainDue(epoch) {
		next = append(next, cmd.Tag)
	}
	assert.Equal(t, []commands.Tag{commands.RAMUsage}, next)
	assert.Equal(t, 0, q.Len())
}

func TestDrainDue_SkipsCommandsRemovedMeanwhile(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	gpu := q.Enqueue(commands.New(commands.GPUTemperature, epoch, 0, commands.Deferred()))

	var got []commands.Tag
	for cmd := range q.DrainDue(epoch) {
		got = append(got, cmd.Tag)
		q.Remove(gpu.ID)
	}
	assert.Equal(t, []commands.Tag{commands.CPUTemperature}, got)
}

func TestDrainDue_NothingDue(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, time.Second, commands.Deferred()))

	assert.Empty(t, slices.Collect(q.DrainDue(epoch)))
	assert.Equal(t, 1, q.Len())
}

func TestRemove(t *testing.T) {
	t.Parallel()

	q := New()
	a := q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))

	assert.True(t, q.Remove(a.ID))
	assert.False(t, q.Remove(a.ID))
}

func TestClear(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(commands.New(commands.CPUTemperature, epoch, 0, commands.Deferred()))
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestConcurrentProducerAndDrain(t *testing.T) {
	t.Parallel()

	q := New()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for range 500 {
			q.EnqueueIfAbsent(commands.New(commands.SoundSpectrum, epoch, 0, commands.Literal("0")))
		}
	}()

	var drained int
	go func() {
		defer wg.Done()
		deadline := time.Now().Add(5 * time.Second)
		for i := 0; i < 500 || (drained == 0 && time.Now().Before(deadline)); i++ {
			for range q.DrainDue(epoch) {
				drained++
			}
		}
	}()

	wg.Wait()
	assert.LessOrEqual(t, q.Count(commands.SoundSpectrum), 1)
	assert.Positive(t, drained)
}

// TestPropertyDrainDue checks that draining yields exactly the due commands
// in insertion order and leaves the others untouched.
func TestPropertyDrainDue(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		q := New()
		all := commands.All()
		n := rapid.IntRange(0, 30).Draw(t, "n")

		var inserted []commands.Command
		for i := range n {
			tag := all[rapid.IntRange(0, len(all)-1).Draw(t, "tag")]
			delay := time.Duration(rapid.IntRange(0, 100).Draw(t, "delay")) * time.Millisecond
			inserted = append(inserted, q.Enqueue(commands.New(tag, epoch, delay, commands.Literal(string(rune('a'+i%26))))))
		}
		cut := epoch.Add(time.Duration(rapid.IntRange(0, 100).Draw(t, "cut")) * time.Millisecond)

		var wantDue, wantLeft []uint64
		for _, c := range inserted {
			if !c.DueAt.After(cut) {
				wantDue = append(wantDue, c.ID)
			} else {
				wantLeft = append(wantLeft, c.ID)
			}
		}

		var gotDue []uint64
		for c := range q.DrainDue(cut) {
			gotDue = append(gotDue, c.ID)
		}
		var gotLeft []uint64
		for _, c := range q.Pending() {
			gotLeft = append(gotLeft, c.ID)
		}

		if !slices.Equal(wantDue, gotDue) {
			t.Fatalf("due: want %v got %v", wantDue, gotDue)
		}
		if !slices.Equal(wantLeft, gotLeft) {
			t.Fatalf("left: want %v got %v", wantLeft, gotLeft)
		}
	})
}
