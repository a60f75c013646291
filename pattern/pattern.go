// Package pattern implements the step sequencer of spec.md §4.5: given
// a pattern's step/subnote data and the current tick, it produces
// concrete MIDI buffers and clip commands submitted to the sync timer,
// with swing, probability, ratchet, and live-recording quantization.
package pattern

// Destination is where a pattern's generated events go, distinct from
// sketchpad.Destination: a track routes live MIDI through the router,
// while a pattern's own destination decides whether its generated
// note-on/note-off pairs become MIDI buffers (Synth/External) or clip
// commands (SampleTrigger/SampleSliced) (spec.md §4.5 point 7).
type Destination int

const (
	SynthDestination Destination = iota
	ExternalDestination
	SampleTrigger
	SampleSliced
)

// NoteLength is the step's note-length enum (spec.md §3): 1..6 mapping
// to ticks-per-step 32, 16, 8, 4, 2, 1 at the pattern's base
// subdivision (128 units = one beat).
type NoteLength int

const (
	NoteLength32nd NoteLength = iota + 1 // 32 units/step
	NoteLength16th
	NoteLength8th
	NoteLength4th
	NoteLengthHalf
	NoteLengthWhole // 1 unit/step
)

// unitsPerStep maps NoteLength to ticks-per-step in the pattern's base
// subdivision (spec.md §3's literal table, indexed 1..6: 32, 16, 8, 4,
// 2, 1), confirmed against original_source/src/PatternModel.cpp's
// noteLengthDetails (case 1: noteDuration = 32; case 2: 16; ...).
var unitsPerStep = map[NoteLength]int64{
	NoteLength32nd:  32,
	NoteLength16th:  16,
	NoteLength8th:   8,
	NoteLength4th:   4,
	NoteLengthHalf:  2,
	NoteLengthWhole: 1,
}

// RatchetStyle selects how a subnote's ratchet-count repeats are spaced
// and whether they share a channel (spec.md §4.5 point 6).
type RatchetStyle int

const (
	SplitStepOverlap RatchetStyle = iota
	SplitStepChoke
	SplitLengthOverlap
	SplitLengthChoke
)

// Subnote is one note within a step, plus its metadata (spec.md §3).
type Subnote struct {
	Note int // 0..127

	Velocity           int // 1..127, default 64
	Delay              int64 // signed ticks, default 0
	Duration           int64 // ticks; 0 means "auto: one step"
	Probability        int // 0..100, default 100
	RatchetCount       int // 0..N, default 0 (no ratchet)
	RatchetStyle       RatchetStyle
	RatchetProbability int // 0..100, default 100
}

// NewSubnote returns a Subnote with spec-default metadata for the
// given note.
func NewSubnote(note int) Subnote {
	return Subnote{Note: note, Velocity: 64, Probability: 100, RatchetProbability: 100}
}

// Step holds the subnotes triggered at one (row, column) cell.
type Step struct {
	Subnotes []Subnote
}

// Pattern is the rectangular (bars x width) step matrix of spec.md §3.
type Pattern struct {
	Width         int // default 16
	BankLength    int // default 8
	AvailableBars int // 1..BankLength
	BankOffset    int

	Steps [][]Step // Steps[row][column], row in [0,AvailableBars)

	NoteLength NoteLength
	Swing      int // 0..100, 50 = no swing

	Destination        Destination
	MidiChannel         int
	ExternalMidiChannel int

	LiveRecord       bool
	LiveRecordSource int // device ID of the listener this pattern records from

	// ClipOffset is the tick this pattern's step 0 is anchored to
	// (spec.md §4.5 point 1: "nextPosition = (tick - clipOffset)...").
	ClipOffset int64

	// SongModeStartOffset additionally shifts nextPosition when driven
	// by the segment handler in song mode.
	SongModeStartOffset int64

	Playing bool
	Solo    bool
}

// NewPattern constructs a Pattern with spec-default field values and a
// zeroed Width x AvailableBars step grid.
func NewPattern(width, availableBars, bankLength int) *Pattern {
	p := &Pattern{
		Width:         width,
		BankLength:    bankLength,
		AvailableBars: availableBars,
		NoteLength:    NoteLength16th,
		Swing:         50,
	}
	p.Steps = make([][]Step, availableBars)
	for r := range p.Steps {
		p.Steps[r] = make([]Step, width)
	}
	return p
}

// TicksPerStep returns this pattern's step length in sync-timer ticks
// given the sync timer's ticks-per-beat multiplier. unitsPerStep is the
// literal tick count at multiplier=128 (spec.md §3's base subdivision);
// it scales linearly with the timer's actual multiplier.
func (p *Pattern) TicksPerStep(multiplier int64) int64 {
	units := unitsPerStep[p.NoteLength]
	if units == 0 {
		units = 16
	}
	return units * multiplier / 128
}

// StepAt returns the step at (row, column), both taken modulo the
// pattern's dimensions.
func (p *Pattern) StepAt(row, column int) *Step {
	row = ((row % p.AvailableBars) + p.AvailableBars) % p.AvailableBars
	column = ((column % p.Width) + p.Width) % p.Width
	return &p.Steps[row][column]
}
