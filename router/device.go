// Package router implements the Router Device (spec.md §4.1) and its
// Event Filter (§4.2): one JACK MIDI input/output port pair, its
// filters, note-activation table, and per-device masks. Its hot-path
// methods never block. ProcessBegin, CurrentInputEvent and
// NextInputEvent do not allocate; WriteEventToOutput grows the output
// buffer by append, and SetNoteActive grows the note-activation map and
// its per-note stacks, so both can allocate.
package router

import (
	"sync/atomic"

	"github.com/openzl/zlcore/midi"
)

// DeviceType is a non-exclusive tag describing what a RouterDevice
// represents (spec.md §3: "these are non-exclusive").
type DeviceType int

const (
	HardwareDeviceType DeviceType = 1 << iota
	ControllerType
	SequencerType
	MasterTrackType
	TimeCodeGeneratorType
)

// DeviceTypeSet is a bitmask of DeviceType values.
type DeviceTypeSet int

func (s DeviceTypeSet) Has(t DeviceType) bool { return s&DeviceTypeSet(t) != 0 }

// noteKey identifies an outstanding note-on by channel and note number.
type noteKey struct {
	channel uint8
	note    uint8
}

// Device owns one JACK MIDI input/output port pair plus everything
// spec.md §3 attaches to a Router Device: filters, masks, the
// note-activation table, and the midi-channel -> target-track map.
type Device struct {
	ID   midi.DeviceID
	Name string

	HardwareID string

	InputPortName  string
	InputEnabled   bool
	OutputPortName string
	OutputEnabled  bool

	Types DeviceTypeSet

	AcceptedChannels ChannelMask
	AcceptedNotes    NoteSet
	Transpose        int

	SendBeatClock bool
	SendTimecode  bool

	ZynthianMasterChannel        int
	FilterZynthianOutputByChannel bool

	// ChannelTrackMap[ch] is the sketchpad track (0..9) that channel ch
	// maps to, or -1 when unmapped (spec.md §3).
	ChannelTrackMap [16]int

	inputFilter  atomic.Pointer[Filter]
	outputFilter atomic.Pointer[Filter]

	// noteActivation maps (channel, note) to the stack of tracks that
	// have an outstanding note-on for it, most recent last. A note-off
	// pops the top; the record is deleted once the stack empties
	// (design notes §9: "a hash map keyed by (channel, note) storing a
	// small stack of (track, remainingOns) pairs").
	noteActivation map[noteKey][]int

	// disabled is set when the underlying JACK port could not be
	// opened (spec.md §4.1 "Ports failing to open are logged once and
	// the device is disabled").
	disabled bool

	// cycle-local state, reset by ProcessBegin.
	inputEvents []midi.Event
	inputCursor int
	outputBuf   []midi.Event
}

// NewDevice constructs a Device with full-acceptance defaults
// (AcceptedChannels/AcceptedNotes default to "all"; filters default to
// nil, i.e. no entries match, so every event passes through
// unrewritten; ZynthianMasterChannel defaults to -1, i.e. no master
// channel).
func NewDevice(id midi.DeviceID, name string) *Device {
	d := &Device{
		ID:               id,
		Name:             name,
		InputEnabled:     true,
		OutputEnabled:    true,
		AcceptedChannels: FullChannelMask(),
		AcceptedNotes:    FullNoteSet(),
		ZynthianMasterChannel: -1,
		noteActivation:   make(map[noteKey][]int),
	}
	for i := range d.ChannelTrackMap {
		d.ChannelTrackMap[i] = -1
	}
	return d
}

// Disable marks the device as unusable after a port-open failure. The
// device is re-enabled by the caller on the next JACK registration
// callback if the port reappears (spec.md §4.1, §7).
func (d *Device) Disable()        { d.disabled = true }
func (d *Device) Enable()         { d.disabled = false }
func (d *Device) IsDisabled() bool { return d.disabled }

// SetInputFilter atomically publishes a new input filter. Safe to call
// from a control thread while the audio thread reads the old filter
// concurrently (spec.md §4.2, §5).
func (d *Device) SetInputFilter(f *Filter) { d.inputFilter.Store(f) }

// SetOutputFilter atomically publishes a new output filter.
func (d *Device) SetOutputFilter(f *Filter) { d.outputFilter.Store(f) }

// InputFilter returns the currently published input filter (may be nil).
func (d *Device) InputFilter() *Filter { return d.inputFilter.Load() }

// OutputFilter returns the currently published output filter (may be nil).
func (d *Device) OutputFilter() *Filter { return d.outputFilter.Load() }

// ProcessBegin captures this cycle's input events (already read from
// the JACK port buffer and sorted by frame offset by the caller) and
// resets the output buffer. events must not be retained or mutated by
// the caller afterwards; Device takes ownership for the cycle.
func (d *Device) ProcessBegin(events []midi.Event) {
	d.inputEvents = events
	d.inputCursor = 0
	if d.outputBuf != nil {
		d.outputBuf = d.outputBuf[:0]
	}
}

// CurrentInputEvent returns the next pending input event without
// consuming it.
func (d *Device) CurrentInputEvent() (midi.Event, bool) {
	if d.inputCursor >= len(d.inputEvents) {
		return midi.Event{}, false
	}
	return d.inputEvents[d.inputCursor], true
}

// NextInputEvent advances past the current input event.
func (d *Device) NextInputEvent() {
	if d.inputCursor < len(d.inputEvents) {
		d.inputCursor++
	}
}

// WriteEventToOutput applies this device's output filter to ev, honors
// the accepted-channel mask, accepted-notes set, and transpose, then
// appends the result to the output buffer at ev's frame offset
// (spec.md §4.1). channelOverride, if >= 0, replaces the event's
// channel before the accepted-channel check (used by ExternalDestination
// routing, spec.md §4.4 point 8).
func (d *Device) WriteEventToOutput(ev midi.Event, channelOverride int) {
	if d.disabled || !d.OutputEnabled {
		return
	}

	if channelOverride >= 0 && ev.IsChannelVoice() {
		ev.Status = ev.StatusNibble() | byte(channelOverride&0x0F)
	}

	if !ev.IsSysEx() {
		if filter := d.outputFilter.Load(); filter != nil {
			ev, _, _ = filter.Match(ev)
		}
	}

	if ev.IsChannelVoice() {
		if !d.AcceptedChannels.Contains(ev.Channel()) {
			return
		}
		if ev.StatusNibble() == midi.NoteOnStatus || ev.StatusNibble() == midi.NoteOffStatus {
			if !d.AcceptedNotes.Contains(int(ev.Data1)) {
				return
			}
			if d.Transpose != 0 {
				ev.Data1 = transposeByte(ev.Data1, d.Transpose)
			}
		}
	}

	if d.outputBuf == nil {
		d.outputBuf = make([]midi.Event, 0, 64)
	}
	d.outputBuf = append(d.outputBuf, ev)
}

// OutputEvents returns this cycle's accumulated output events, in the
// order they were written. The caller (jackio) writes them to the real
// JACK port buffer; per-event frame offsets are preserved verbatim
// (spec.md §5 point 3).
func (d *Device) OutputEvents() []midi.Event { return d.outputBuf }

func transposeByte(note byte, semitones int) byte {
	n := int(note) + semitones
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return byte(n)
}

// SetNoteActive maintains the per-note activation table (spec.md §4.1).
// A note-on pushes track onto the stack for (channel, note). A note-off
// pops the most recently pushed track and returns it; if the stack is
// empty (no matching prior note-on recorded on this device),
// fallbackTrack is returned instead (spec.md: "If note-off arrives for
// an inactive note, the target track is determined by the device's
// midi-channel -> target-track mapping (fallback: the current
// sketchpad track)" — callers pass that resolved fallback in).
func (d *Device) SetNoteActive(track int, channel, note uint8, isOn bool, fallbackTrack int) int {
	key := noteKey{channel: channel, note: note}
	if isOn {
		d.noteActivation[key] = append(d.noteActivation[key], track)
		return track
	}

	stack := d.noteActivation[key]
	if len(stack) == 0 {
		return fallbackTrack
	}
	resolved := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(d.noteActivation, key)
	} else {
		d.noteActivation[key] = stack
	}
	return resolved
}

// NoteActivationTrack returns the track of the most-recent outstanding
// note-on for (channel, note) on this device, or -1 if none.
func (d *Device) NoteActivationTrack(channel, note uint8) int {
	stack := d.noteActivation[noteKey{channel: channel, note: note}]
	if len(stack) == 0 {
		return -1
	}
	return stack[len(stack)-1]
}

// ActiveNoteRef identifies one outstanding note-on recorded in this
// device's activation table, for the all-notes-off synthesis spec.md §5
// ("Cancellation") and SPEC_FULL.md §C.4 require on stop.
type ActiveNoteRef struct {
	Track   int
	Channel uint8
	Note    uint8
}

// ActiveNotes lists every (channel, note) this device currently has an
// outstanding note-on for, one entry per distinct key regardless of
// stack depth (a channel/note silenced once is silenced for every track
// that shares it).
func (d *Device) ActiveNotes() []ActiveNoteRef {
	out := make([]ActiveNoteRef, 0, len(d.noteActivation))
	for key, stack := range d.noteActivation {
		if len(stack) == 0 {
			continue
		}
		out = append(out, ActiveNoteRef{Track: stack[len(stack)-1], Channel: key.channel, Note: key.note})
	}
	return out
}

// TargetTrackForMidiChannel returns the configured track for this
// device's channel mapping, or -1 meaning "use input-filter decision or
// current track" (spec.md §4.1).
func (d *Device) TargetTrackForMidiChannel(channel uint8) int {
	if channel > 15 {
		return -1
	}
	return d.ChannelTrackMap[channel]
}
