// Package sketchpad holds the shared sketchpad-track data model
// (spec.md §3 "Sketchpad Track") used by the dispatch, pattern,
// sequence, and playfield packages. It owns no behavior of its own
// beyond small accessors; the owning edge runs sequence/pattern ->
// track per spec.md §9's back-reference guidance, so Track never holds
// a pointer back to its pattern or sequence, only plain indices.
package sketchpad

import "github.com/openzl/zlcore/router"

// Destination is where a track's routed events end up (spec.md §3).
type Destination int

const (
	NoDestination Destination = iota
	ZynthianDestination
	SamplerDestination
	ExternalDestination
)

// NumTracks is the fixed number of sketchpad tracks (spec.md §3: "A
// fixed array indexed 0..9").
const NumTracks = 10

// NumClips is the number of clips (patterns) each track holds (spec.md
// glossary: "a track has five clips (parts)").
const NumClips = 5

// SlotSelectionStyle mirrors the original UI's note/slot selection
// mode. It is stored on Track only: this engine does not interpret it,
// and pattern persistence does not save it.
type SlotSelectionStyle int

const (
	SlotSelectionSame SlotSelectionStyle = iota
	SlotSelectionAllPitches
)

// Track is one of the ten fixed sketchpad tracks (spec.md §3).
type Track struct {
	Index int

	// DeviceID is this track's "output channel" router device.
	DeviceID uint32 // midi.DeviceID, kept untyped here to avoid an
	// import cycle with router/midi beyond what's needed.

	ActiveClip int // 0..NumClips-1, the currently playing pattern

	Destination      Destination
	ExternalChannel   int // -1 means "same as track index"
	ZynthianChannelMap [16]int // -1 when unmapped

	LockStyle router.LockStyle
	Key       router.Key
	Scale     router.Scale

	SlotSelection SlotSelectionStyle
}

// NewTrack constructs a Track with spec-default field values.
func NewTrack(index int) *Track {
	t := &Track{
		Index:           index,
		ActiveClip:      0,
		Destination:     ZynthianDestination,
		ExternalChannel: -1,
	}
	for i := range t.ZynthianChannelMap {
		t.ZynthianChannelMap[i] = -1
	}
	return t
}

// ResolvedExternalChannel returns the track's external MIDI channel,
// resolving the "-1 means same as track index" convention.
func (t *Track) ResolvedExternalChannel() int {
	if t.ExternalChannel < 0 {
		return t.Index
	}
	return t.ExternalChannel
}

// MappedChannels returns the distinct real MIDI channel numbers in use
// across this track's zynthian slots, in slot order of first
// occurrence (not sorted by channel). This is the
// "track's zynthian-channel set" spec.md §4.3 names as the pool
// `nextAvailableChannel` round-robins over.
func (t *Track) MappedChannels() []int {
	seen := make(map[int]bool)
	var out []int
	for _, mapped := range t.ZynthianChannelMap {
		if mapped != -1 && !seen[mapped] {
			seen[mapped] = true
			out = append(out, mapped)
		}
	}
	return out
}

// ZynthianChannels returns the list of zynthian output slots (0..15)
// this track is mapped to, in ascending order. ZynthianChannelMap[c]
// holds the MIDI channel to present at slot c, or -1 if this track
// does not use that slot.
func (t *Track) ZynthianChannels() []int {
	var out []int
	for slot, mapped := range t.ZynthianChannelMap {
		if mapped != -1 {
			out = append(out, slot)
		}
	}
	return out
}
