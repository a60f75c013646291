// Package synctimer implements the sync timer of spec.md §4.3: the
// single tick source that drives every other time-dependent subsystem
// from inside the JACK process callback, plus the two scheduling rings
// (MIDI buffers and clip commands) and the fixed-size command pools
// spec.md §5 requires.
//
// Grounded on chriskillpack-modplayer/player.go's GenerateAudio /
// sequenceTick loop: that loop accumulates a sample budget per callback
// and advances "row" state in fixed per-row increments without
// allocating; this package generalizes "samples consumed this callback"
// to "ticks elapsed this cycle" and "row" to "tick."
package synctimer

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/openzl/zlcore/internal/pool"
	"github.com/openzl/zlcore/midi"
)

// Sentinel errors for recoverable-by-caller conditions, in the style of
// the teacher's ErrUnrecognizedMODFormat.
var (
	ErrPoolExhausted = errors.New("synctimer: command pool exhausted")
	ErrNotRunning    = errors.New("synctimer: timer is not running")
)

// ClipRef identifies the (track, clip) a ClipCommand applies to. A
// single ClipCommand can carry several simultaneous instructions
// (spec.md §4.3's "clip reference, midi channel, midi note,
// start-playback, stop-playback, change-volume, volume,
// change-looping, looping, change-slice, slice-index").
type ClipRef struct {
	Track int
	Clip  int
}

// ClipCommand is one entry of the sync timer's clip-command ring,
// consumed by the sampler interface (spec.md §4.5's "midiMessageToClipCommands").
type ClipCommand struct {
	Clip        ClipRef
	MidiChannel int
	MidiNote    int

	StartPlayback bool
	StopPlayback  bool

	ChangeVolume bool
	Volume       float32

	ChangeLooping bool
	Looping       bool

	ChangeSlice bool
	SliceIndex  int
}

// TimerOp identifies the operation a TimerCommand carries (spec.md
// §4.8's segment-handler commands and §4.7's playfield transitions).
type TimerOp int

const (
	OpStartClipLoop TimerOp = iota
	OpStopClipLoop
	OpStartPart
	OpStopPart
	OpStopPlayback
)

// TimerCommand is one entry of the sync timer's timer-command ring,
// dispatched to the TimerSink passed to Drain.
type TimerCommand struct {
	Op    TimerOp
	Track int
	Clip  int
}

// scheduledBuffer is one entry of the MIDI-buffer ring: a batch of
// events destined for one router device (or sketchpad track), keyed by
// the absolute tick they should fire on.
type scheduledBuffer struct {
	events []midi.Event
	track  int          // sketchpad track, or -1 if Device is used directly
	device midi.DeviceID
}

type scheduledClip struct {
	cmd ClipCommand
}

type scheduledTimer struct {
	cmd TimerCommand
}

// tickSlot accumulates everything scheduled for exactly one absolute
// tick. It is reused across ring wraps: buffers/clips/timers are
// truncated to length zero (not reallocated) once their tick has been
// drained, so steady-state operation after warmup performs no
// allocation, matching player.go's mixChannels index-into-preallocated-
// slice discipline.
type tickSlot struct {
	tick    int64
	valid   bool
	buffers []scheduledBuffer
	clips   []scheduledClip
	timers  []scheduledTimer
}

// Ring sizing: how many ticks of lookahead the scheduling rings must
// cover. The pattern engine schedules at most lookaheadAmount=2 steps
// ahead (spec.md §4.5); a generous power-of-two margin avoids wraparound
// under any reasonable ticksPerPatternStep.
const defaultRingTicks = 1 << 13 // 8192 ticks

const defaultPoolSize = 1024

// DeviceWriter is the narrow router-device surface the sync timer needs
// to drain MIDI buffers into. router.Device satisfies this directly.
type DeviceWriter interface {
	WriteEventToOutput(ev midi.Event, channelOverride int)
}

// DeviceResolver looks up a DeviceWriter by ID or by sketchpad track.
// Implemented by the dispatch package's device registry.
type DeviceResolver interface {
	DeviceByID(id midi.DeviceID) (DeviceWriter, bool)
	DeviceByTrack(track int) (DeviceWriter, bool)
}

// ClipSink receives drained clip commands (the sampler interface).
type ClipSink interface {
	HandleClipCommand(cmd ClipCommand)
}

// TimerSink receives drained timer commands (engine.TimerCommandRouter
// implements this, forwarding to the playfield manager and a part sink).
type TimerSink interface {
	HandleTimerCommand(cmd TimerCommand)
}

// Config parameterizes a Timer.
type Config struct {
	Multiplier    int     // ticks per beat, a power of two (spec default 128)
	SampleRate    float64 // JACK frames per second
	RingTicks     int     // 0 uses defaultRingTicks
	ClipPoolSize  int     // 0 uses defaultPoolSize
	TimerPoolSize int     // 0 uses defaultPoolSize
}

// Timer is the sync timer of spec.md §4.3.
type Timer struct {
	multiplier int64
	sampleRate float64
	bpmBits    atomic.Uint64 // math.Float64bits(bpm), lock-free hot-path read

	currentTick    atomic.Int64
	framesElapsed  atomic.Int64 // total frames processed since start, for jackPlayheadUsecs
	running        atomic.Bool

	ringMask int64
	ring     []tickSlot

	clipPool  *pool.Pool[ClipCommand]
	timerPool *pool.Pool[TimerCommand]

	ringOverruns  atomic.Uint64
	poolOverruns  atomic.Uint64

	rrState roundRobinState
}

// New constructs a Timer. bpm is the initial tempo.
func New(cfg Config, bpm float64) *Timer {
	multiplier := cfg.Multiplier
	if multiplier == 0 {
		multiplier = 128
	}
	ringTicks := cfg.RingTicks
	if ringTicks == 0 {
		ringTicks = defaultRingTicks
	}
	n := 1
	for n < ringTicks {
		n <<= 1
	}
	clipPoolSize := cfg.ClipPoolSize
	if clipPoolSize == 0 {
		clipPoolSize = defaultPoolSize
	}
	timerPoolSize := cfg.TimerPoolSize
	if timerPoolSize == 0 {
		timerPoolSize = defaultPoolSize
	}

	t := &Timer{
		multiplier: int64(multiplier),
		sampleRate: cfg.SampleRate,
		ringMask:   int64(n - 1),
		ring:       make([]tickSlot, n),
		clipPool:   pool.New[ClipCommand](clipPoolSize),
		timerPool:  pool.New[TimerCommand](timerPoolSize),
		rrState:    newRoundRobinState(),
	}
	t.bpmBits.Store(math.Float64bits(bpm))
	return t
}

// BPM returns the current tempo. Safe to call from the audio thread.
func (t *Timer) BPM() float64 { return math.Float64frombits(t.bpmBits.Load()) }

// SetBPM updates the tempo. Safe to call from a control thread
// concurrently with audio-thread reads.
func (t *Timer) SetBPM(bpm float64) { t.bpmBits.Store(math.Float64bits(bpm)) }

// CurrentTick returns the most recently completed tick.
func (t *Timer) CurrentTick() int64 { return t.currentTick.Load() }

// Multiplier returns the configured ticks-per-beat.
func (t *Timer) Multiplier() int64 { return t.multiplier }

// Start marks the timer running. Must be called before the process
// callback begins advancing ticks.
func (t *Timer) Start() { t.running.Store(true) }

// Running reports whether the timer is currently advancing ticks.
func (t *Timer) Running() bool { return t.running.Load() }

// RingOverruns and PoolOverruns expose telemetry counters for the
// control-thread logger to drain periodically (SPEC_FULL.md ambient
// stack: "library code never calls log directly on the audio thread").
func (t *Timer) RingOverruns() uint64 { return t.ringOverruns.Load() }
func (t *Timer) PoolOverruns() uint64 { return t.poolOverruns.Load() }

// ticksPerUsec returns bpm*multiplier/(60*1e6), the exact conversion
// spec.md §4.3 names.
func ticksPerUsec(bpm float64, multiplier int64) float64 {
	return bpm * float64(multiplier) / (60.0 * 1e6)
}

// SubbeatCountToSeconds converts a tick count to seconds at the given
// bpm: ticks_per_second = bpm * multiplier / 60.
func (t *Timer) SubbeatCountToSeconds(bpm float64, ticks int64) float64 {
	ticksPerSecond := bpm * float64(t.multiplier) / 60.0
	return float64(ticks) / ticksPerSecond
}

// SecondsToSubbeatCount is the exact inverse of SubbeatCountToSeconds.
func (t *Timer) SecondsToSubbeatCount(bpm float64, seconds float64) int64 {
	ticksPerSecond := bpm * float64(t.multiplier) / 60.0
	return int64(math.Round(seconds * ticksPerSecond))
}

// JackPlayheadUsecs returns the absolute microsecond timestamp of the
// first frame of the current cycle, monotonic across cycles.
func (t *Timer) JackPlayheadUsecs() int64 {
	frames := t.framesElapsed.Load()
	if t.sampleRate <= 0 {
		return 0
	}
	return int64(float64(frames) / t.sampleRate * 1e6)
}

// TimerTickForJackPlayhead converts a JACK frame timestamp to (tick,
// offsetInFrames): the tick that frame falls within, and how many
// frames into that tick it is.
func (t *Timer) TimerTickForJackPlayhead(frameTimestamp int64) (tick int64, offsetInFrames int64) {
	if t.sampleRate <= 0 {
		return 0, 0
	}
	usecs := float64(frameTimestamp) / t.sampleRate * 1e6
	tpu := ticksPerUsec(t.BPM(), t.multiplier)
	if tpu <= 0 {
		return 0, 0
	}
	exact := usecs * tpu
	tick = int64(math.Floor(exact))
	subTickUsecs := (exact - float64(tick)) / tpu
	offsetInFrames = int64(subTickUsecs * t.sampleRate / 1e6)
	return tick, offsetInFrames
}

// slot returns the ring slot for an absolute tick, resetting it (to the
// teacher's preallocated-slice style: truncate, don't reallocate) if it
// currently holds stale data from a previous wrap.
func (t *Timer) slot(tick int64) *tickSlot {
	s := &t.ring[tick&t.ringMask]
	if !s.valid || s.tick != tick {
		if s.valid && s.tick != tick {
			t.ringOverruns.Add(1)
		}
		s.tick = tick
		s.valid = true
		s.buffers = s.buffers[:0]
		s.clips = s.clips[:0]
		s.timers = s.timers[:0]
	}
	return s
}

// ScheduleMidiBuffer appends buffer to the tick ring at
// currentTick+delayTicks, tagged for the given sketchpad track. Per-
// event frame offsets inside buffer are preserved verbatim.
func (t *Timer) ScheduleMidiBuffer(buffer []midi.Event, delayTicks int64, sketchpadTrack int) {
	tick := t.currentTick.Load() + delayTicks
	s := t.slot(tick)
	s.buffers = append(s.buffers, scheduledBuffer{events: buffer, track: sketchpadTrack, device: 0})
}

// ScheduleMidiBufferToDevice is the device-addressed variant, used for
// beat clock / timecode broadcast where there is no single owning
// track.
func (t *Timer) ScheduleMidiBufferToDevice(buffer []midi.Event, delayTicks int64, device midi.DeviceID) {
	tick := t.currentTick.Load() + delayTicks
	s := t.slot(tick)
	s.buffers = append(s.buffers, scheduledBuffer{events: buffer, track: -1, device: device})
}

// GetClipCommand draws a zero-valued ClipCommand from the fixed pool.
func (t *Timer) GetClipCommand() (*ClipCommand, error) {
	v, ok := t.clipPool.Get()
	if !ok {
		t.poolOverruns.Add(1)
		return nil, ErrPoolExhausted
	}
	*v = ClipCommand{}
	return v, nil
}

// GetTimerCommand draws a zero-valued TimerCommand from the fixed pool.
func (t *Timer) GetTimerCommand() (*TimerCommand, error) {
	v, ok := t.timerPool.Get()
	if !ok {
		t.poolOverruns.Add(1)
		return nil, ErrPoolExhausted
	}
	*v = TimerCommand{}
	return v, nil
}

// ScheduleClipCommand copies cmd into the clip ring at
// currentTick+delayTicks and returns cmd to the pool immediately.
func (t *Timer) ScheduleClipCommand(cmd *ClipCommand, delayTicks int64) {
	tick := t.currentTick.Load() + delayTicks
	s := t.slot(tick)
	s.clips = append(s.clips, scheduledClip{cmd: *cmd})
	t.clipPool.Put(cmd)
}

// ScheduleTimerCommand copies cmd into the timer-command ring at
// currentTick+delayTicks and returns cmd to the pool immediately.
func (t *Timer) ScheduleTimerCommand(cmd *TimerCommand, delayTicks int64) {
	tick := t.currentTick.Load() + delayTicks
	s := t.slot(tick)
	s.timers = append(s.timers, scheduledTimer{cmd: *cmd})
	t.timerPool.Put(cmd)
}

// roundRobinState backs NextAvailableChannel: a per-track round-robin
// cursor plus a cache so a second call with the same (track,
// delayTicks) pair resolves to the channel already allocated without a
// second rotation.
type roundRobinState struct {
	cursor map[int]int
	cache  map[rrKey]int
}

type rrKey struct {
	track      int
	delayTicks int64
}

func newRoundRobinState() roundRobinState {
	return roundRobinState{cursor: make(map[int]int), cache: make(map[rrKey]int)}
}

// NextAvailableChannel round-robin allocates a real MIDI channel from
// channels (the track's zynthian-channel set) for sketchpadTrack,
// guaranteeing that a second call with the same (sketchpadTrack,
// delayTicks) pair returns the same channel previously allocated (so a
// note-on and its matching note-off land on the same channel).
//
// Callers allocate once per subnote trigger using the note-on's delay
// as the key, then reuse the returned channel directly when enqueuing
// the matching note-off; they do not call this a second time with the
// note-off's (later) delay.
func (t *Timer) NextAvailableChannel(sketchpadTrack int, delayTicks int64, channels []int) (int, bool) {
	if len(channels) == 0 {
		return 0, false
	}
	key := rrKey{track: sketchpadTrack, delayTicks: delayTicks}
	if ch, ok := t.rrState.cache[key]; ok {
		return ch, true
	}
	idx := t.rrState.cursor[sketchpadTrack] % len(channels)
	t.rrState.cursor[sketchpadTrack] = idx + 1
	ch := channels[idx]
	t.rrState.cache[key] = ch
	return ch, true
}

// ExpireChannelAllocations drops cached (track, delayTicks) allocations
// whose absolute target tick (currentTick+delayTicks, evaluated at
// allocation time) is now behind the given tick, bounding the cache's
// size. Call once per process cycle after advancing currentTick.
func (t *Timer) ExpireChannelAllocations(beforeTick int64) {
	for k := range t.rrState.cache {
		if t.currentTick.Load()+k.delayTicks < beforeTick {
			delete(t.rrState.cache, k)
		}
	}
}

// Drain is the per-cycle algorithm of spec.md §4.3: advance the timer
// by framesThisCycle frames, and for the current tick (which holds
// anything scheduled at delay 0 since the previous drain) and each newly
// elapsed tick, in ascending order, dispatch timer commands, then clip
// commands, then MIDI buffers.
func (t *Timer) Drain(framesThisCycle int64, resolver DeviceResolver, clips ClipSink, timers TimerSink) {
	if !t.running.Load() {
		return
	}
	t.framesElapsed.Add(framesThisCycle)

	bpm := t.BPM()
	tpu := ticksPerUsec(bpm, t.multiplier)
	cycleEndUsecs := t.JackPlayheadUsecs()
	targetTick := int64(math.Floor(float64(cycleEndUsecs) * tpu))

	current := t.currentTick.Load()
	ticksThisCycle := targetTick - current
	if ticksThisCycle <= 0 {
		return
	}

	for tick := current; tick <= current+ticksThisCycle; tick++ {
		s := &t.ring[tick&t.ringMask]
		if !s.valid || s.tick != tick {
			continue
		}

		for i := range s.timers {
			if timers != nil {
				timers.HandleTimerCommand(s.timers[i].cmd)
			}
		}
		for i := range s.clips {
			if clips != nil {
				clips.HandleClipCommand(s.clips[i].cmd)
			}
		}
		for i := range s.buffers {
			b := &s.buffers[i]
			var w DeviceWriter
			var ok bool
			if resolver != nil {
				if b.track >= 0 {
					w, ok = resolver.DeviceByTrack(b.track)
				} else {
					w, ok = resolver.DeviceByID(b.device)
				}
			}
			if !ok {
				continue
			}
			for _, ev := range b.events {
				w.WriteEventToOutput(ev, -1)
			}
		}

		s.valid = false
		s.buffers = s.buffers[:0]
		s.clips = s.clips[:0]
		s.timers = s.timers[:0]
	}

	t.currentTick.Store(current + ticksThisCycle)
	t.ExpireChannelAllocations(current + ticksThisCycle)
}

// Cancel stops the timer: for every active note it synchronously writes
// a note-off and an all-notes-off (CC 123) on that note's channel
// straight to the owning track's device, then clears every ring slot.
// activeNotes is supplied by the caller (the router package owns
// note-activation state); resolver maps sketchpad track to DeviceWriter
// for emission.
func (t *Timer) Cancel(activeNotes []ActiveNote, resolver DeviceResolver) {
	t.running.Store(false)
	for _, an := range activeNotes {
		if resolver == nil {
			break
		}
		w, ok := resolver.DeviceByTrack(an.Track)
		if !ok {
			continue
		}
		w.WriteEventToOutput(midi.NoteOff(an.Channel, an.Note), -1)
		w.WriteEventToOutput(midi.AllNotesOff(an.Channel), -1)
	}
	for i := range t.ring {
		t.ring[i].valid = false
		t.ring[i].buffers = t.ring[i].buffers[:0]
		t.ring[i].clips = t.ring[i].clips[:0]
		t.ring[i].timers = t.ring[i].timers[:0]
	}
}

// ActiveNote identifies one sounding note that Cancel must silence.
type ActiveNote struct {
	Track   int
	Channel uint8
	Note    uint8
}
