package pattern

import "github.com/openzl/zlcore/midi"

// pendingKey identifies an outstanding note-on awaiting its matching
// note-off during live recording.
type pendingKey struct {
	channel uint8
	note    uint8
}

type pendingNote struct {
	startTick int64
	velocity  uint8
}

// Recorder captures live-played notes into a Publisher's pattern,
// quantizing them the way original_source/src/MidiRecorder.cpp does
// (spec.md §4.5 "Live recording").
type Recorder struct {
	Publisher  *Publisher
	Multiplier int64

	Enabled bool

	// mostRecentStartTimestamp anchors recorded ticks to pattern-local
	// time; set by the caller when recording starts.
	mostRecentStartTimestamp int64

	pending map[pendingKey]pendingNote
}

// NewRecorder constructs a Recorder over pub.
func NewRecorder(pub *Publisher, multiplier int64) *Recorder {
	return &Recorder{Publisher: pub, Multiplier: multiplier, pending: make(map[pendingKey]pendingNote)}
}

// StartedAt resets the quantization anchor; call once when recording
// begins (e.g. on playback start).
func (r *Recorder) StartedAt(tick int64) { r.mostRecentStartTimestamp = tick }

// Observe feeds one MIDI event (from a listener port the pattern
// engine subscribes to) at the given sync-timer tick into the
// recorder. Non-note events are ignored.
func (r *Recorder) Observe(ev midi.Event, tick int64) {
	if !r.Enabled {
		return
	}
	ch := uint8(ev.Channel())
	note := ev.Data1

	switch {
	case ev.IsNoteOn():
		r.pending[pendingKey{channel: ch, note: note}] = pendingNote{startTick: tick, velocity: ev.Data2}
	case ev.IsNoteOff():
		key := pendingKey{channel: ch, note: note}
		start, ok := r.pending[key]
		if !ok {
			return
		}
		delete(r.pending, key)
		r.addRecordedNote(start.startTick, tick, int(note), start.velocity)
	}
}

// addRecordedNote implements spec.md §4.5's quantization algorithm:
// convert to pattern-local ticks, find the nearest step, snap delay and
// duration within deviationAllowance, then insert or update the
// subnote, updating its velocity to the recorded note-on's.
func (r *Recorder) addRecordedNote(startTick, endTick int64, note int, velocity uint8) {
	p := r.Publisher.Load()
	if p == nil {
		return
	}
	ticksPerStep := p.TicksPerStep(r.Multiplier)
	if ticksPerStep <= 0 {
		return
	}

	normalizedStart := startTick - r.mostRecentStartTimestamp
	step := normalizedStart / ticksPerStep
	delay := normalizedStart - step*ticksPerStep

	deviationAllowance := ticksPerStep
	if deviationAllowance > 2 {
		deviationAllowance = 2
	}

	if delay < deviationAllowance {
		delay = 0
	} else if ticksPerStep-delay < deviationAllowance {
		step++
		delay = 0
	}

	duration := endTick - startTick
	if diff := duration - ticksPerStep; diff < deviationAllowance && diff > -deviationAllowance {
		duration = 0 // auto-quantized: "one step"
	}

	period := int64(p.AvailableBars) * int64(p.Width)
	if period <= 0 {
		return
	}
	position := ((step % period) + period) % period
	row := int((position / int64(p.Width)) % int64(p.AvailableBars))
	column := int(position % int64(p.Width))

	r.Publisher.Publish(func(shadow *Pattern) {
		st := shadow.StepAt(row, column)
		for i := range st.Subnotes {
			if st.Subnotes[i].Note == note {
				st.Subnotes[i].Delay = delay
				st.Subnotes[i].Duration = duration
				st.Subnotes[i].Velocity = int(velocity)
				return
			}
		}
		sub := NewSubnote(note)
		sub.Delay = delay
		sub.Duration = duration
		sub.Velocity = int(velocity)
		st.Subnotes = append(st.Subnotes, sub)
	})
}
