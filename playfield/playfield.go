// Package playfield implements the Playfield Manager (spec.md §4.7): the
// authoritative record of which clips are playing now versus which clip
// states are staged to take effect at the next bar boundary.
//
// Grounded on original_source/src/PlayfieldManager.h/.cpp's
// current/next-bar state pair and setClipPlaystate entry point, recast
// as the current-vs-staged-next idiom
// chriskillpack-modplayer/cmd/modplay/play.go's AudioPlayer uses for its
// own current/next playback state.
package playfield

import "sync/atomic"

// State is a clip's playback state.
type State int

const (
	Stopped State = iota
	Playing
)

// Position selects which slot setClipPlaystate writes to.
type Position int

const (
	// NextBar stages the change; it takes effect at the next bar
	// boundary.
	NextBar Position = iota
	// Current commits the change immediately, without bar alignment.
	Current
)

// Songs, Tracks and Clips bound the fixed playfield grid. Only song
// index 0 is used today (spec.md §4.7), but the dimension is kept so a
// future multi-song sketchpad doesn't need another concurrency
// redesign; Track/Clip mirror sequence.Tracks/sequence.Clips's 10x5
// matrix (spec.md §3).
const (
	Songs  = 1
	Tracks = 10
	Clips  = 5
)

// slotState is one (song, track, clip)'s current and staged-next state,
// published as an immutable value: every mutation builds a new
// slotState and swaps it in, rather than editing one in place.
type slotState struct {
	current State
	// currentOffset is the sync-timer tick at which this clip's current
	// playback started, used by the pattern engine to align
	// pattern-relative scheduling (spec.md §4.7 "clipOffset").
	currentOffset int64

	nextBar       State
	nextBarOffset int64
	// nextBarStaged is false once the current and next-bar states agree
	// and no explicit offset override is pending, so a bar boundary
	// doesn't churn through no-op commits every bar.
	nextBarStaged bool
}

var zeroSlot = &slotState{nextBarOffset: -1, currentOffset: -1}

// ClipKey identifies one playfield slot.
type ClipKey struct {
	Song, Track, Clip int
}

// ClipSink receives a start/stop clip command when a commit changes a
// sample-looped clip's playback state (spec.md §4.7: "a state transition
// also emits a clip command... with delay 0").
type ClipSink interface {
	StartClip(track, clip int)
	StopClip(track, clip int)
}

// Manager tracks every playfield slot's current and staged-next state.
// Advance runs on the JACK audio thread once per tick (spec.md §5: must
// not block), and SetClipPlaystate runs on the control thread at
// arbitrary times, so both sides publish slotState through a per-slot
// atomic.Pointer and retry on contention instead of taking a lock — the
// same discipline router.Device's atomic.Pointer[Filter] and
// sequence.Controller's atomic per-cell grid already use.
type Manager struct {
	slots [Songs][Tracks][Clips]atomic.Pointer[slotState]

	// BarLength is the tick count of one bar; ticks whose value modulo
	// BarLength is 0 are bar boundaries.
	BarLength int64

	Clips ClipSink
}

// New constructs an empty Manager. barLength must be positive.
func New(barLength int64, clips ClipSink) *Manager {
	return &Manager{BarLength: barLength, Clips: clips}
}

func (m *Manager) cell(song, track, clip int) *atomic.Pointer[slotState] {
	return &m.slots[song][track][clip]
}

// load returns the slot's current snapshot, or the zero slot if it has
// never been written.
func load(ptr *atomic.Pointer[slotState]) *slotState {
	s := ptr.Load()
	if s == nil {
		return zeroSlot
	}
	return s
}

// SetClipPlaystate is spec.md §4.7's client entry point. It retries a
// compare-and-swap against the slot's published pointer instead of
// locking, so it never contends with Advance's audio-thread read/write.
func (m *Manager) SetClipPlaystate(song, track, clip int, newState State, position Position, offset int64) {
	ptr := m.cell(song, track, clip)
	for {
		old := ptr.Load()
		cur := load(ptr)
		next := *cur

		var notify func()
		switch position {
		case Current:
			notify = m.applyCommit(track, clip, &next, newState, offset)
		case NextBar:
			next.nextBar = newState
			next.nextBarOffset = offset
			next.nextBarStaged = true
		}

		if ptr.CompareAndSwap(old, &next) {
			if notify != nil {
				notify()
			}
			return
		}
	}
}

// ClipPlaystate returns the state at the given position.
func (m *Manager) ClipPlaystate(song, track, clip int, position Position) State {
	s := load(m.cell(song, track, clip))
	if position == Current {
		return s.current
	}
	return s.nextBar
}

// ClipOffset returns the tick at which the clip's current playback
// started (spec.md §4.7 "clipOffset"), or -1 if it is not playing.
func (m *Manager) ClipOffset(song, track, clip int) int64 {
	return load(m.cell(song, track, clip)).currentOffset
}

// Advance is the per-tick entry point, called from Engine.ProcessCycle
// on the audio thread. On a bar boundary, every slot whose staged
// next-bar state differs from current (or carries an explicit offset
// override) is committed.
func (m *Manager) Advance(tick int64) {
	if m.BarLength <= 0 || tick%m.BarLength != 0 {
		return
	}

	for s := 0; s < Songs; s++ {
		for t := 0; t < Tracks; t++ {
			for cl := 0; cl < Clips; cl++ {
				m.advanceSlot(s, t, cl)
			}
		}
	}
}

// advanceSlot commits one slot's staged next-bar state, retrying the
// compare-and-swap on contention against a concurrent SetClipPlaystate.
func (m *Manager) advanceSlot(song, track, clip int) {
	ptr := m.cell(song, track, clip)
	for {
		old := ptr.Load()
		cur := load(ptr)
		if !cur.nextBarStaged {
			return
		}
		next := *cur

		var notify func()
		if next.nextBar == next.current && next.nextBarOffset == -1 {
			next.nextBarStaged = false
		} else {
			notify = m.applyCommit(track, clip, &next, next.nextBar, next.nextBarOffset)
			next.nextBarStaged = false
		}

		if ptr.CompareAndSwap(old, &next) {
			if notify != nil {
				notify()
			}
			return
		}
	}
}

// applyCommit mutates next in place to reflect a state transition and
// returns a clip-sink notification to run only once the caller's
// compare-and-swap has actually won, so a retried attempt never
// double-fires StartClip/StopClip.
func (m *Manager) applyCommit(track, clip int, next *slotState, newState State, offset int64) func() {
	changed := newState != next.current
	next.current = newState
	if newState == Stopped {
		next.currentOffset = -1
	} else if offset >= 0 {
		next.currentOffset = offset
	}

	if !changed || m.Clips == nil {
		return nil
	}
	switch newState {
	case Playing:
		return func() { m.Clips.StartClip(track, clip) }
	case Stopped:
		return func() { m.Clips.StopClip(track, clip) }
	}
	return nil
}
