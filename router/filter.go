package router

import "github.com/openzl/zlcore/midi"

// RewriteKind identifies what a Rewrite does to the working copy of a
// matched event (spec.md §3 Event Filter).
type RewriteKind int

const (
	RewriteSetByte RewriteKind = iota
	RewriteAddByte
	RewriteSetChannel
	RewriteSetTargetTrack
)

// ByteSelector names which byte of the event a SetByte/AddByte rewrite
// targets.
type ByteSelector int

const (
	ByteData1 ByteSelector = iota
	ByteData2
)

// Rewrite is one step of a filter entry's rewrite chain, applied in
// declared order to a working copy of the matched event.
type Rewrite struct {
	Kind  RewriteKind
	Byte  ByteSelector // used by RewriteSetByte/RewriteAddByte
	Value int          // new value, delta, channel, or target track
}

// Entry is one ordered match-rule in an Filter: a predicate over
// (status nibble, channel, data1 range, data2 range) plus the rewrites
// to apply when it is the first entry to match (spec.md §3, §4.2).
//
// StatusNibble == 0 means "match any status." Channels == 0 means
// "match no channel" (entries should use FullChannelMask() to mean
// "any channel").
type Entry struct {
	StatusNibble byte
	Channels     ChannelMask
	Data1Lo, Data1Hi byte
	Data2Lo, Data2Hi byte

	// TargetTrack is the track this entry routes to when matched,
	// before any RewriteSetTargetTrack rewrite overrides it. -1 means
	// "no opinion" (spec.md §4.4 point 5: the dispatcher falls back to
	// the device's channel map, then the current track).
	TargetTrack int

	Rewrites []Rewrite
}

// ResolvedTargetTrack returns this entry's target track, honoring a
// RewriteSetTargetTrack rewrite if one is present (the last such
// rewrite wins, matching the "applied in declared order" rule).
func (e *Entry) ResolvedTargetTrack() int {
	track := e.TargetTrack
	for _, rw := range e.Rewrites {
		if rw.Kind == RewriteSetTargetTrack {
			track = rw.Value
		}
	}
	return track
}

func (e *Entry) matches(ev midi.Event) bool {
	if e.StatusNibble != 0 && ev.StatusNibble() != e.StatusNibble {
		return false
	}
	ch := ev.Channel()
	if ev.IsChannelVoice() {
		if !e.Channels.Contains(ch) {
			return false
		}
	}
	if ev.Data1 < e.Data1Lo || ev.Data1 > e.Data1Hi {
		return false
	}
	if ev.Data2 < e.Data2Lo || ev.Data2 > e.Data2Hi {
		return false
	}
	return true
}

// Filter is an ordered, immutable sequence of Entry values. Filters are
// never mutated after construction; the control side publishes a new
// Filter and swaps an atomic pointer to it (spec.md §4.2 design
// rationale, §5 "Filters and filter entries are immutable once
// published").
type Filter struct {
	Entries []Entry
}

// NewFilter builds an immutable Filter from the given entries. Copy the
// slice so later mutation of the caller's backing array can't leak
// into the published filter.
func NewFilter(entries []Entry) *Filter {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Filter{Entries: cp}
}

// Match walks the filter's entries in order and returns the first one
// that matches ev, along with ev rewritten per that entry's rewrite
// chain. If no entry matches, Match returns the original event
// unchanged and ok=false.
func (f *Filter) Match(ev midi.Event) (rewritten midi.Event, matched *Entry, ok bool) {
	if f == nil {
		return ev, nil, false
	}
	for i := range f.Entries {
		entry := &f.Entries[i]
		if entry.matches(ev) {
			return applyRewrites(ev, entry.Rewrites), entry, true
		}
	}
	return ev, nil, false
}

func applyRewrites(ev midi.Event, rewrites []Rewrite) midi.Event {
	out := ev
	for _, rw := range rewrites {
		switch rw.Kind {
		case RewriteSetByte:
			setByte(&out, rw.Byte, byte(clampByte(rw.Value)))
		case RewriteAddByte:
			cur := getByte(out, rw.Byte)
			setByte(&out, rw.Byte, byte(clampByte(int(cur)+rw.Value)))
		case RewriteSetChannel:
			if out.IsChannelVoice() {
				ch := rw.Value
				if ch < 0 {
					ch = 0
				}
				if ch > 15 {
					ch = 15
				}
				out.Status = out.StatusNibble() | byte(ch)
			}
		case RewriteSetTargetTrack:
			// Target-track rewrites do not touch the event bytes; the
			// dispatcher reads this back from the rewritten Rewrite's
			// Value via the caller-held matched Entry/Rewrite instead.
			// Nothing to do to the event itself here.
		}
	}
	return out
}

func getByte(ev midi.Event, sel ByteSelector) byte {
	if sel == ByteData1 {
		return ev.Data1
	}
	return ev.Data2
}

func setByte(ev *midi.Event, sel ByteSelector, v byte) {
	if sel == ByteData1 {
		ev.Data1 = v
	} else {
		ev.Data2 = v
	}
}

// clampByte clamps an arbitrary int rewrite result to a valid MIDI data
// byte range (spec.md §7: "Filter-match producing out-of-range rewrite
// ... clamp to valid range, no error").
func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}
