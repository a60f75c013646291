package router

// LockStyle is a sketchpad track's key/scale lock mode (spec.md §3
// Sketchpad Track, §4.4 point 7).
type LockStyle int

const (
	LockOff LockStyle = iota
	LockBlock
	LockRewrite
)

// Scale identifies a pitch-class interval set, the concrete algorithm
// behind spec.md's "apply the target track's key/scale lock," resolved
// from original_source/src/KeyScales.h's Scale enumerator (the intent
// of each named scale; the interval tables themselves are standard
// music theory, not transcribed from the C++).
type Scale int

const (
	ScaleChromatic Scale = iota
	ScaleMajor
	ScaleNaturalMinor
	ScaleHarmonicMinor
	ScaleMelodicMinor
	ScaleMajorPentatonic
	ScaleMinorPentatonic
	ScaleDorian
	ScalePhrygian
	ScaleLydian
	ScaleMixolydian
	ScaleLocrian
)

// intervals holds, for each Scale, the set of semitone offsets from
// the root that belong to the scale.
var intervals = map[Scale][]int{
	ScaleChromatic:       {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	ScaleMajor:           {0, 2, 4, 5, 7, 9, 11},
	ScaleNaturalMinor:    {0, 2, 3, 5, 7, 8, 10},
	ScaleHarmonicMinor:   {0, 2, 3, 5, 7, 8, 11},
	ScaleMelodicMinor:    {0, 2, 3, 5, 7, 9, 11},
	ScaleMajorPentatonic: {0, 2, 4, 7, 9},
	ScaleMinorPentatonic: {0, 3, 5, 7, 10},
	ScaleDorian:          {0, 2, 3, 5, 7, 9, 10},
	ScalePhrygian:        {0, 1, 3, 5, 7, 8, 10},
	ScaleLydian:          {0, 2, 4, 6, 7, 9, 11},
	ScaleMixolydian:      {0, 2, 4, 5, 7, 9, 10},
	ScaleLocrian:         {0, 1, 3, 5, 6, 8, 10},
}

// Key identifies a root pitch class (0=C .. 11=B) and an octave
// (spec.md §3 Sketchpad Track: "a key (pitch + octave)").
type Key struct {
	PitchClass int // 0..11, C=0
	Octave     int
}

// inScale reports whether midiNote's pitch class is a member of scale
// rooted at key.PitchClass.
func inScale(midiNote int, scale Scale, key Key) bool {
	set, ok := intervals[scale]
	if !ok {
		return true
	}
	pc := ((midiNote - key.PitchClass) % 12 + 12) % 12
	for _, iv := range set {
		if iv == pc {
			return true
		}
	}
	return false
}

// nearestInScale returns the nearest note to midiNote (preferring the
// note itself, then searching outward) whose pitch class belongs to
// scale rooted at key.PitchClass, clamped to 0..127.
func nearestInScale(midiNote int, scale Scale, key Key) int {
	if inScale(midiNote, scale, key) {
		return midiNote
	}
	for d := 1; d <= 11; d++ {
		if up := midiNote + d; up <= 127 && inScale(up, scale, key) {
			return up
		}
		if down := midiNote - d; down >= 0 && inScale(down, scale, key) {
			return down
		}
	}
	return midiNote
}

// ApplyLock implements spec.md §4.4 point 7: for LockOff, the note
// passes through unchanged. For LockBlock, a note outside the scale is
// rejected (ok=false). For LockRewrite, a note outside the scale is
// snapped to the nearest in-scale note.
func ApplyLock(style LockStyle, midiNote int, scale Scale, key Key) (rewritten int, ok bool) {
	switch style {
	case LockBlock:
		if !inScale(midiNote, scale, key) {
			return midiNote, false
		}
		return midiNote, true
	case LockRewrite:
		return nearestInScale(midiNote, scale, key), true
	default:
		return midiNote, true
	}
}
