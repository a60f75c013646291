package pattern

import (
	"math/rand"

	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/synctimer"
)

// lookaheadAmount is spec.md §4.5 point 2's lookaheadAmount=2: once a
// step boundary is reached, the engine also pre-schedules the next two
// steps so the sync timer always has upcoming buffers queued ahead of
// the audio thread reaching them.
const lookaheadAmount = 2

// Scheduler is the narrow synctimer.Timer surface the pattern engine
// needs. synctimer.Timer satisfies it directly.
type Scheduler interface {
	ScheduleMidiBuffer(buffer []midi.Event, delayTicks int64, sketchpadTrack int)
	ScheduleClipCommand(cmd *synctimer.ClipCommand, delayTicks int64)
	GetClipCommand() (*synctimer.ClipCommand, error)
	NextAvailableChannel(sketchpadTrack int, delayTicks int64, channels []int) (int, bool)
}

// Track is the narrow view of a sketchpad track the pattern engine
// needs: which track index owns this pattern and which real MIDI
// channels its zynthian mapping makes available for round-robin
// channel allocation.
type Track struct {
	Index           int
	MappedChannels  []int
	ExternalChannel int // resolved external channel, spec.md §4.5's ExternalDestination
}

// Engine drives one sketchpad track's currently-active pattern forward
// one tick at a time (spec.md §4.5).
//
// Grounded on other_examples/grahamseamans-go-sequence's
// GeneratePattern (tick = startTick + step*ticksPerStep, per-step
// per-note MIDI event emission), generalized from a boolean step grid
// to the full subnote/metadata model spec.md §3 names.
type Engine struct {
	Publisher  *Publisher
	Track      Track
	Multiplier int64 // sync timer ticks per beat
	Scheduler  Scheduler

	// Rand is the probability source for subnote/ratchet probability
	// draws. Defaults to a package-level source; tests inject a seeded
	// *rand.Rand for determinism.
	Rand *rand.Rand
}

// NewEngine constructs an Engine with a default random source.
func NewEngine(pub *Publisher, track Track, multiplier int64, sched Scheduler) *Engine {
	return &Engine{
		Publisher:  pub,
		Track:      track,
		Multiplier: multiplier,
		Scheduler:  sched,
		Rand:       rand.New(rand.NewSource(1)),
	}
}

// Advance is the per-tick entry point the sequence controller calls
// (spec.md §4.6). It is a no-op unless this tick lands on (or, via
// lookahead, precedes by a whole number of steps) a step boundary.
func (e *Engine) Advance(tick int64) {
	p := e.Publisher.Load()
	if p == nil || !p.Playing {
		return
	}

	ticksPerStep := p.TicksPerStep(e.Multiplier)
	if ticksPerStep <= 0 {
		return
	}

	nextPosition := tick - p.ClipOffset + p.SongModeStartOffset
	if !stepBoundary(nextPosition, ticksPerStep) {
		return
	}

	for lookahead := int64(0); lookahead <= lookaheadAmount; lookahead++ {
		schedulingIncrement := lookahead * ticksPerStep
		candidate := nextPosition + schedulingIncrement

		period := int64(p.AvailableBars) * int64(p.Width)
		if period <= 0 {
			continue
		}
		stepIndex := candidate / ticksPerStep
		position := ((stepIndex % period) + period) % period
		row := int((position / int64(p.Width)) % int64(p.AvailableBars))
		column := int(position % int64(p.Width))

		step := p.StepAt(row, column)
		swingOffset := e.swingOffset(p, ticksPerStep, row*p.Width+column)

		for i := range step.Subnotes {
			sub := &step.Subnotes[i]
			e.emitSubnote(p, sub, schedulingIncrement+swingOffset, ticksPerStep)
		}
	}
}

// stepBoundary reports whether position is an exact multiple of
// ticksPerStep.
func stepBoundary(position, ticksPerStep int64) bool {
	return ((position % ticksPerStep) + ticksPerStep) % ticksPerStep == 0
}

// swingOffset computes spec.md §4.5 point 4: 0 for even-index steps;
// noteDuration*swing/100 - noteDuration/2 for odd-index steps (swing=50
// yields 0 for every step).
func (e *Engine) swingOffset(p *Pattern, noteDuration int64, stepIndex int) int64 {
	if stepIndex%2 == 0 {
		return 0
	}
	return noteDuration*int64(p.Swing)/100 - noteDuration/2
}

func (e *Engine) emitSubnote(p *Pattern, sub *Subnote, baseDelay int64, ticksPerStep int64) {
	if sub.Probability < 100 {
		if e.Rand.Intn(100) >= sub.Probability {
			return
		}
	}

	duration := sub.Duration
	if duration == 0 {
		duration = ticksPerStep
	}

	if sub.RatchetCount == 0 {
		e.emitNotePair(p, sub, baseDelay+sub.Delay, duration)
		return
	}

	count := sub.RatchetCount
	var ratchetDelay, ratchetDuration int64
	chokeShared := false
	switch sub.RatchetStyle {
	case SplitStepOverlap:
		ratchetDelay = ticksPerStep / int64(count)
		ratchetDuration = duration
	case SplitStepChoke:
		ratchetDelay = ticksPerStep / int64(count)
		ratchetDuration = ratchetDelay
		chokeShared = true
	case SplitLengthOverlap:
		ratchetDelay = duration / int64(count)
		ratchetDuration = duration
	case SplitLengthChoke:
		ratchetDelay = duration / int64(count)
		ratchetDuration = ratchetDelay
		chokeShared = true
	}

	var sharedChannel int
	if chokeShared {
		sharedChannel = e.allocateChannel(baseDelay + sub.Delay)
	}

	for r := 0; r < count; r++ {
		if sub.RatchetProbability < 100 {
			if e.Rand.Intn(100) >= sub.RatchetProbability {
				continue
			}
		}
		delay := baseDelay + sub.Delay + int64(r)*ratchetDelay
		channel := sharedChannel
		if !chokeShared {
			channel = e.allocateChannel(delay)
		}
		e.emitNotePairOnChannel(p, sub, channel, delay, ratchetDuration)
	}
}

// allocateChannel resolves a real MIDI channel for this track via the
// sync timer's round-robin allocator, keyed by the note-on's delay; the
// caller passes the returned channel to both the note-on and the
// matching note-off.
func (e *Engine) allocateChannel(delay int64) int {
	ch, ok := e.Scheduler.NextAvailableChannel(e.Track.Index, delay, e.Track.MappedChannels)
	if !ok {
		return 0
	}
	return ch
}

func (e *Engine) emitNotePair(p *Pattern, sub *Subnote, delay int64, duration int64) {
	e.emitNotePairOnChannel(p, sub, e.allocateChannel(delay), delay, duration)
}

func (e *Engine) emitNotePairOnChannel(p *Pattern, sub *Subnote, channel int, delay int64, duration int64) {
	noteOn := midi.NoteOn(uint8(channel), uint8(sub.Note), uint8(sub.Velocity))
	noteOff := midi.NoteOff(uint8(channel), uint8(sub.Note))

	switch p.Destination {
	case SampleTrigger, SampleSliced:
		e.emitClipPair(p, sub, channel, delay, delay+duration)
	case ExternalDestination:
		e.Scheduler.ScheduleMidiBuffer([]midi.Event{noteOn}, delay, e.Track.Index)
		e.Scheduler.ScheduleMidiBuffer([]midi.Event{noteOff}, delay+duration, e.Track.Index)
	default: // SynthDestination
		e.Scheduler.ScheduleMidiBuffer([]midi.Event{noteOn}, delay, e.Track.Index)
		e.Scheduler.ScheduleMidiBuffer([]midi.Event{noteOff}, delay+duration, e.Track.Index)
	}
}

// emitClipPair translates a (note-on, note-off) pair into a pair of
// clip commands (spec.md §4.5 point 7's midiMessageToClipCommands).
func (e *Engine) emitClipPair(p *Pattern, sub *Subnote, channel int, onDelay, offDelay int64) {
	startCmd, err := e.Scheduler.GetClipCommand()
	if err != nil {
		return
	}
	startCmd.MidiChannel = channel
	startCmd.MidiNote = sub.Note
	startCmd.StartPlayback = true
	if p.Destination == SampleSliced {
		startCmd.ChangeSlice = true
		startCmd.SliceIndex = sub.Note
	}
	e.Scheduler.ScheduleClipCommand(startCmd, onDelay)

	stopCmd, err := e.Scheduler.GetClipCommand()
	if err != nil {
		return
	}
	stopCmd.MidiChannel = channel
	stopCmd.MidiNote = sub.Note
	stopCmd.StopPlayback = true
	e.Scheduler.ScheduleClipCommand(stopCmd, offDelay)
}
