// Package midi defines the wire-level MIDI event type shared by every
// other package in zlcore: the router, the sync timer, and the pattern
// engine all read and write this same Event shape.
package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Status nibbles for channel-voice messages.
const (
	NoteOffStatus        = 0x80
	NoteOnStatus         = 0x90
	PolyAftertouchStatus = 0xA0
	ControlChangeStatus  = 0xB0
	ProgramChangeStatus  = 0xC0
	ChannelPressureStatus = 0xD0
	PitchBendStatus      = 0xE0
)

// System common / real-time status bytes relevant to beat-clock and
// timecode bypass routing (spec.md §4.4 point 8).
const (
	StatusMTCQuarterFrame = 0xF1
	StatusSongPosition    = 0xF2
	StatusSysExStart      = 0xF0
	StatusSysExEnd        = 0xF7
	StatusTimingClock     = 0xF8
	StatusStart           = 0xFA
	StatusContinue        = 0xFB
	StatusStop            = 0xFC
)

// Event is a cycle-local MIDI event: up to 3 status bytes, or a
// variable-length sysex payload, plus the frame offset within the
// current JACK process cycle and the device it originated from.
//
// Size is 1-3 for channel-voice/system messages. A sysex event (status
// 0xF0) carries Size > 3 and its payload in SysEx instead of Data1/Data2.
type Event struct {
	Status byte
	Data1  byte
	Data2  byte
	Size   int // 1, 2, or 3; for sysex, len(SysEx)

	FrameOffset uint32 // 0 <= FrameOffset < nframes for the owning cycle

	SysEx []byte // non-nil only when IsSysEx() is true

	// Device identifies the router device this event was read from (or,
	// for synthesized events such as all-notes-off, the device it is
	// addressed to). Zero value means "not yet assigned."
	Device DeviceID
}

// DeviceID is a stable handle for a router device, assigned at
// JACK-port-discovery time. It is small and comparable so Event can be
// copied by value on the hot path without allocation.
type DeviceID uint32

// IsSysEx reports whether this event is a system-exclusive message.
func (e Event) IsSysEx() bool {
	return e.Status == StatusSysExStart
}

// IsChannelVoice reports whether the status byte is one of the seven
// channel-voice message kinds (note on/off, aftertouch, CC, program
// change, channel pressure, pitch bend).
func (e Event) IsChannelVoice() bool {
	nibble := e.Status & 0xF0
	return nibble >= NoteOffStatus && nibble <= PitchBendStatus
}

// StatusNibble returns the high nibble of the status byte.
func (e Event) StatusNibble() byte {
	return e.Status & 0xF0
}

// Channel returns the 0-based MIDI channel for a channel-voice event,
// or -1 for anything else (spec.md §4.4 point 4).
func (e Event) Channel() int {
	if !e.IsChannelVoice() {
		return -1
	}
	return int(e.Status & 0x0F)
}

// IsNoteOn reports whether this is a note-on with nonzero velocity. A
// note-on with velocity 0 is conventionally a note-off (running-status
// convention); callers that care about that distinction should check
// Data2 themselves.
func (e Event) IsNoteOn() bool {
	return e.StatusNibble() == NoteOnStatus && e.Data2 > 0
}

// IsNoteOff reports whether this is a note-off, including a note-on
// with velocity 0.
func (e Event) IsNoteOff() bool {
	return e.StatusNibble() == NoteOffStatus ||
		(e.StatusNibble() == NoteOnStatus && e.Data2 == 0)
}

// IsBeatClock reports whether this event is one of the beat-clock
// system real-time messages that bypass track routing entirely (spec.md
// §4.4 point 8).
func (e Event) IsBeatClock() bool {
	switch e.Status {
	case StatusTimingClock, StatusStart, StatusContinue, StatusStop, StatusSongPosition:
		return true
	}
	return false
}

// IsTimecode reports whether this event is an MTC quarter-frame message.
func (e Event) IsTimecode() bool {
	return e.Status == StatusMTCQuarterFrame
}

// NoteOn builds a 3-byte note-on event for the given channel/key/velocity.
// It is built through gomidi's channel-message constructors so the byte
// layout always matches the upstream MIDI v2 library's understanding of
// the wire format, then unpacked into the flat Event fields the hot path
// expects.
func NoteOn(channel, key, velocity uint8) Event {
	msg := gomidi.Channel(channel).NoteOn(key, velocity)
	return fromMessage(msg)
}

// NoteOff builds a 3-byte note-off event (velocity 0 note-on form, the
// conventional choice for devices that implement running status).
func NoteOff(channel, key uint8) Event {
	msg := gomidi.Channel(channel).NoteOff(key)
	return fromMessage(msg)
}

// ControlChange builds a control-change event.
func ControlChange(channel, controller, value uint8) Event {
	msg := gomidi.Channel(channel).ControlChange(controller, value)
	return fromMessage(msg)
}

// AllNotesOff builds the CC 123 "all notes off" event for a channel
// (spec.md §5 cancellation, §C.4 of SPEC_FULL.md).
func AllNotesOff(channel uint8) Event {
	return ControlChange(channel, 123, 0)
}

func fromMessage(msg gomidi.Message) Event {
	raw := msg.Bytes()
	ev := Event{Size: len(raw)}
	if len(raw) > 0 {
		ev.Status = raw[0]
	}
	if len(raw) > 1 {
		ev.Data1 = raw[1]
	}
	if len(raw) > 2 {
		ev.Data2 = raw[2]
	}
	return ev
}

// Bytes returns the raw wire bytes for this event, suitable for writing
// to a JACK MIDI port buffer.
func (e Event) Bytes() []byte {
	if e.IsSysEx() {
		return e.SysEx
	}
	switch e.Size {
	case 1:
		return []byte{e.Status}
	case 2:
		return []byte{e.Status, e.Data1}
	default:
		return []byte{e.Status, e.Data1, e.Data2}
	}
}

func (e Event) String() string {
	if e.IsSysEx() {
		return fmt.Sprintf("SysEx[%d]@%d", len(e.SysEx), e.FrameOffset)
	}
	return fmt.Sprintf("%#02x %#02x %#02x@%d", e.Status, e.Data1, e.Data2, e.FrameOffset)
}
