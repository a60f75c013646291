// Package engine is the top-level Engine singleton (spec.md §9: "no
// hidden globals; one constructed object owns the sync timer, the
// router devices, and the pattern/sequence/playfield/segment state").
//
// Grounded on chriskillpack-modplayer/cmd/modplay/play.go's AudioPlayer,
// which owns and wires together player/reverb/stream as one struct
// rather than package-level globals; Engine plays the same role for the
// sync timer, dispatcher, and sequence/playfield/segment controllers.
package engine

import (
	"github.com/openzl/zlcore/dispatch"
	"github.com/openzl/zlcore/playfield"
	"github.com/openzl/zlcore/segment"
	"github.com/openzl/zlcore/sequence"
	"github.com/openzl/zlcore/synctimer"
)

// ClipSink is the sampler-side surface the engine drains clip commands
// into. Left abstract: the sampler/sample-player implementation lives
// outside this module's scope (SPEC_FULL.md Non-goals).
type ClipSink interface {
	HandleClipCommand(cmd synctimer.ClipCommand)
}

// TimerCommandRouter implements synctimer.TimerSink, fanning drained
// timer commands out to the playfield manager (clip-loop transitions)
// and the segment handler's part commands, per spec.md §4.7/§4.8.
type TimerCommandRouter struct {
	Playfield *playfield.Manager
	Song      int // sketchpad song index; always 0 today per spec.md §4.7

	// PartSink receives StartPart/StopPart commands; nil is a valid no-op
	// (song mode that never uses Parts).
	PartSink func(track, clip int, start bool)
}

// HandleTimerCommand implements synctimer.TimerSink.
func (r *TimerCommandRouter) HandleTimerCommand(cmd synctimer.TimerCommand) {
	switch cmd.Op {
	case synctimer.OpStartClipLoop:
		if r.Playfield != nil {
			r.Playfield.SetClipPlaystate(r.Song, cmd.Track, cmd.Clip, playfield.Playing, playfield.Current, -1)
		}
	case synctimer.OpStopClipLoop:
		if r.Playfield != nil {
			r.Playfield.SetClipPlaystate(r.Song, cmd.Track, cmd.Clip, playfield.Stopped, playfield.Current, -1)
		}
	case synctimer.OpStartPart:
		if r.PartSink != nil {
			r.PartSink(cmd.Track, cmd.Clip, true)
		}
	case synctimer.OpStopPart:
		if r.PartSink != nil {
			r.PartSink(cmd.Track, cmd.Clip, false)
		}
	case synctimer.OpStopPlayback:
		// No action: neither this router nor segment.Handler stops
		// playback on this command; song-mode playback ends only when
		// segment.Handler.StopPlayback is called.
	}
}

// Engine owns every control-plane and audio-plane component and exposes
// the single ProcessCycle entry point a JACK client (or a test) drives
// once per process callback. ProcessCycle must only ever be called from
// that one audio thread; spec.md §5 forbids it from blocking, so Engine
// holds no lock of its own, the same discipline router.Device,
// dispatch.Dispatcher, and pattern.Publisher already use. Stop is a
// control-thread call the caller must only make once the JACK client
// has stopped invoking the process callback (jackio.Client.Close runs
// first), so it never races ProcessCycle either.
type Engine struct {
	Timer      *synctimer.Timer
	Dispatcher *dispatch.Dispatcher
	Sequence   *sequence.Controller
	Playfield  *playfield.Manager
	Segment    *segment.Handler
	Clips      ClipSink

	lastTick int64
}

// New constructs an Engine from its already-wired components. Devices,
// tracks, and patterns are configured by the caller (config package)
// before ProcessCycle is ever invoked.
func New(timer *synctimer.Timer, d *dispatch.Dispatcher, seq *sequence.Controller, pf *playfield.Manager, seg *segment.Handler, clips ClipSink) *Engine {
	return &Engine{Timer: timer, Dispatcher: d, Sequence: seq, Playfield: pf, Segment: seg, Clips: clips}
}

// ProcessCycle implements spec.md §5's per-cycle ordering guarantees:
//  1. every device's processBegin runs before any event is read
//     (the caller, jackio, does this before invoking ProcessCycle);
//  2. the sync timer drains all ticks elapsed this cycle in ascending
//     order, timer commands before clip commands before MIDI buffers;
//  3. after the drain, the sequence/playfield/segment controllers
//     advance once per elapsed tick, in that order; they run once all
//     of this cycle's ticks have drained, not interleaved with them;
//  4. the dispatcher's frame-ordered merge runs last, producing this
//     cycle's outbound events for jackio to flush.
func (e *Engine) ProcessCycle(framesThisCycle int64) {
	timerRouter := &TimerCommandRouter{Playfield: e.Playfield}

	before := e.Timer.CurrentTick()
	e.Timer.Drain(framesThisCycle, e.Dispatcher, e.Clips, timerRouter)
	after := e.Timer.CurrentTick()

	for tick := before + 1; tick <= after; tick++ {
		if e.Sequence != nil {
			e.Sequence.Advance(tick)
		}
		if e.Playfield != nil {
			e.Playfield.Advance(tick)
		}
		if e.Segment != nil {
			e.Segment.Advance(tick)
		}
	}
	e.lastTick = after

	if e.Dispatcher != nil {
		e.Dispatcher.Dispatch()
	}
}

// Stop implements spec.md §5's cancellation path: synthesize
// all-notes-off across every device with an active note, then stop the
// sync timer and the sequence controller's own stop behavior. The
// caller must ensure the audio thread is no longer invoking
// ProcessCycle before calling Stop (see the Engine doc comment).
func (e *Engine) Stop() {
	if e.Dispatcher != nil {
		e.Timer.Cancel(e.Dispatcher.ActiveNotes(), e.Dispatcher)
	}
	if e.Sequence != nil {
		e.Sequence.Stop()
	}
	if e.Segment != nil {
		e.Segment.StopPlayback()
	}
}

// ActiveNotes exposes the dispatcher's active-note snapshot, used by
// callers that need to synthesize their own note-off sweep (e.g. a
// device hot-unplug) without a full engine Stop.
func (e *Engine) ActiveNotes() []synctimer.ActiveNote {
	if e.Dispatcher == nil {
		return nil
	}
	return e.Dispatcher.ActiveNotes()
}
