// Package sequence implements the Sequence Controller (spec.md §4.6): a
// 10x5 matrix of per-track, per-clip patterns, advanced one sync-timer
// tick at a time.
//
// Grounded on original_source/src/SequenceModel.cpp's per-pattern
// iteration-with-solo-check loop, and on
// chriskillpack-modplayer/player.go's GenerateAudio driving each voice
// forward once per callback.
package sequence

import (
	"sync/atomic"

	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/pattern"
)

// Tracks is the fixed sketchpad-track count; Clips is the per-track clip
// (pattern-bank) count, per spec.md §3's 10x5 matrix.
const (
	Tracks = 10
	Clips  = 5
)

// AllNotesOffSink is the narrow surface the controller needs to post a
// synthesized all-notes-off buffer when the sync timer stops (spec.md
// §4.6 "Stop behavior").
type AllNotesOffSink interface {
	ScheduleMidiBuffer(buffer []midi.Event, delayTicks int64, sketchpadTrack int)
}

// MasterTrack is the sketchpad track index the stop-behavior all-notes-off
// buffer is posted to (spec.md §6's "MasterTrack-Sequencer" port).
const MasterTrack = -1

// Controller owns every (track, clip) pattern engine and advances them in
// lock-step with the sync timer. Advance runs on the JACK audio thread
// (spec.md §5: must not block), so every field it reads is an atomic
// published independently by the rare control-thread setters below —
// the same discipline router.Device's atomic.Pointer[Filter] and
// dispatch.Dispatcher's atomic.Int32 current track already use.
type Controller struct {
	engines [Tracks][Clips]atomic.Pointer[pattern.Engine]
	solo    [Tracks][Clips]atomic.Bool
	anySolo atomic.Bool

	AllNotesOff AllNotesOffSink
}

// New constructs an empty Controller; engines are installed per-slot via
// SetEngine as sketchpad tracks are configured.
func New(sink AllNotesOffSink) *Controller {
	return &Controller{AllNotesOff: sink}
}

// SetEngine installs (or clears, with nil) the engine driving one
// (track, clip) slot.
func (c *Controller) SetEngine(track, clip int, e *pattern.Engine) {
	c.engines[track][clip].Store(e)
}

// SetSolo marks (track, clip) as the exclusive pattern to advance, or
// clears it. Per spec.md §4.6: "if a pattern is set solo, only it
// advances."
func (c *Controller) SetSolo(track, clip int, solo bool) {
	c.solo[track][clip].Store(solo)

	any := false
	for t := 0; t < Tracks; t++ {
		for cl := 0; cl < Clips; cl++ {
			if c.solo[t][cl].Load() {
				any = true
			}
		}
	}
	c.anySolo.Store(any)
}

// Advance drives every active pattern forward by one sync-timer tick,
// honoring solo exclusivity.
func (c *Controller) Advance(tick int64) {
	anySolo := c.anySolo.Load()
	for t := 0; t < Tracks; t++ {
		for cl := 0; cl < Clips; cl++ {
			if anySolo && !c.solo[t][cl].Load() {
				continue
			}
			e := c.engines[t][cl].Load()
			if e == nil {
				continue
			}
			e.Advance(tick)
		}
	}
}

// Stop implements spec.md §4.6's stop behavior: on timerRunning=false,
// issue all-notes-off through the router via a synthesized MIDI buffer
// on the master sketchpad track.
func (c *Controller) Stop() {
	if c.AllNotesOff == nil {
		return
	}
	buf := make([]midi.Event, 0, 16)
	for ch := 0; ch < 16; ch++ {
		buf = append(buf, midi.AllNotesOff(uint8(ch)))
	}
	c.AllNotesOff.ScheduleMidiBuffer(buf, 0, MasterTrack)
}
