// Package dispatch implements the per-cycle MIDI router dispatcher of
// spec.md §4.4: merge timestamped events from every enabled input
// device, resolve each to a target sketchpad track, apply key/scale
// lock, and write to the right outputs.
//
// Grounded on other_examples/grahamseamans-go-sequence's Manager (one
// orchestrator holding many Device values, one tick-driven pass over
// all of them) generalized from a fixed per-tick callback array to a
// frame-ordered merge across however many router.Device inputs are
// registered.
package dispatch

import (
	"container/heap"
	"sync/atomic"

	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/router"
	"github.com/openzl/zlcore/sketchpad"
	"github.com/openzl/zlcore/synctimer"
)

// Dispatcher owns the registered router devices and sketchpad tracks
// for one JACK process cycle's worth of dispatch (spec.md §4.4).
type Dispatcher struct {
	Devices []*router.Device
	Tracks  []*sketchpad.Track

	// zynthianSlots maps a global zynthian output slot (0..15) to the
	// router device that slot's port lives on; a track's
	// ZynthianChannelMap entries are slot indices into this map.
	zynthianSlots map[int]*router.Device

	deviceByID map[midi.DeviceID]*router.Device

	currentTrack atomic.Int32

	listeners *listenerBank

	heap eventHeap // reused across cycles; see Dispatch.
}

// New constructs a Dispatcher. zynthianSlots may be nil if no track
// uses ZynthianDestination slot mirroring.
func New(devices []*router.Device, tracks []*sketchpad.Track, zynthianSlots map[int]*router.Device) *Dispatcher {
	d := &Dispatcher{
		Devices:       devices,
		Tracks:        tracks,
		zynthianSlots: zynthianSlots,
		deviceByID:    make(map[midi.DeviceID]*router.Device, len(devices)),
		listeners:     newListenerBank(),
	}
	for _, dev := range devices {
		if dev != nil {
			d.deviceByID[dev.ID] = dev
		}
	}
	return d
}

// CurrentTrack returns the currently selected sketchpad track, the
// routing fallback for events with no other track opinion.
func (d *Dispatcher) CurrentTrack() int { return int(d.currentTrack.Load()) }

// SetCurrentTrack updates the fallback track. Safe to call from a
// control thread concurrently with Dispatch running on the audio
// thread.
func (d *Dispatcher) SetCurrentTrack(track int) { d.currentTrack.Store(int32(track)) }

// DeviceByID implements synctimer.DeviceResolver.
func (d *Dispatcher) DeviceByID(id midi.DeviceID) (synctimer.DeviceWriter, bool) {
	dev, ok := d.deviceByID[id]
	if !ok {
		return nil, false
	}
	return dev, true
}

// DeviceByTrack implements synctimer.DeviceResolver, resolving a
// sketchpad track index to its configured output device.
func (d *Dispatcher) DeviceByTrack(track int) (synctimer.DeviceWriter, bool) {
	if track < 0 || track >= len(d.Tracks) || d.Tracks[track] == nil {
		return nil, false
	}
	dev, ok := d.deviceByID[midi.DeviceID(d.Tracks[track].DeviceID)]
	if !ok {
		return nil, false
	}
	return dev, true
}

// Drain removes and returns every event queued on one of the five
// observability ports (spec.md §4.4 point 9), for a control-thread UI.
func (d *Dispatcher) Drain(kind ListenerKind) []midi.Event { return d.listeners.Drain(kind) }

// ActiveNotes collects every device's outstanding note-on records into
// the shape synctimer.Cancel needs to synthesize all-notes-off.
func (d *Dispatcher) ActiveNotes() []synctimer.ActiveNote {
	var out []synctimer.ActiveNote
	for _, dev := range d.Devices {
		if dev == nil {
			continue
		}
		for _, an := range dev.ActiveNotes() {
			out = append(out, synctimer.ActiveNote{Track: an.Track, Channel: an.Channel, Note: an.Note})
		}
	}
	return out
}

// heapItem is one pending event plus the device it came from, ordered
// by frame offset and (as a stable tiebreak) device index.
type heapItem struct {
	deviceIdx   int
	frameOffset uint32
	ev          midi.Event
}

type eventHeap []heapItem

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].frameOffset != h[j].frameOffset {
		return h[i].frameOffset < h[j].frameOffset
	}
	return h[i].deviceIdx < h[j].deviceIdx
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dispatch runs one full pass of spec.md §4.4's per-cycle algorithm:
// merge every enabled input device's pending events in (frame, device)
// order and route each one.
//
// Callers invoke this once per JACK process cycle, after
// synctimer.Timer.Drain. Drain writes its tick-scheduled buffers
// straight to each track's output device with WriteEventToOutput, so
// those events do not pass through Dispatch; Dispatch routes only the
// events that ProcessBegin placed on the input devices.
func (d *Dispatcher) Dispatch() {
	d.heap = d.heap[:0]
	for idx, dev := range d.Devices {
		if dev == nil || dev.IsDisabled() || !dev.InputEnabled {
			continue
		}
		if ev, ok := dev.CurrentInputEvent(); ok {
			d.heap = append(d.heap, heapItem{deviceIdx: idx, frameOffset: ev.FrameOffset, ev: ev})
		}
	}
	heap.Init(&d.heap)

	for d.heap.Len() > 0 {
		item := heap.Pop(&d.heap).(heapItem)
		dev := d.Devices[item.deviceIdx]

		d.dispatchOne(dev, item.ev)
		dev.NextInputEvent()

		if next, ok := dev.CurrentInputEvent(); ok {
			heap.Push(&d.heap, heapItem{deviceIdx: item.deviceIdx, frameOffset: next.FrameOffset, ev: next})
		}
	}
}

func (d *Dispatcher) dispatchOne(dev *router.Device, ev midi.Event) {
	if ev.IsSysEx() {
		d.broadcastAllOutputs(ev, -1)
		d.listeners.emit(PassthroughListener, ev)
		return
	}

	if ev.IsBeatClock() || ev.IsTimecode() {
		for _, out := range d.Devices {
			if out == nil || out.IsDisabled() || !out.OutputEnabled {
				continue
			}
			if (ev.IsBeatClock() && out.SendBeatClock) || (ev.IsTimecode() && out.SendTimecode) {
				out.WriteEventToOutput(ev, -1)
			}
		}
		d.listeners.emit(PassthroughListener, ev)
		return
	}

	rewritten, entry, matched := dev.InputFilter().Match(ev)
	channel := rewritten.Channel()

	targetTrack := -1
	if matched {
		targetTrack = entry.ResolvedTargetTrack()
	}
	if targetTrack == -1 || targetTrack == -2 {
		if channel >= 0 {
			targetTrack = dev.TargetTrackForMidiChannel(uint8(channel))
		}
		if targetTrack < 0 {
			targetTrack = d.CurrentTrack()
		}
	}
	if targetTrack == -3 {
		return // spec.md §4.4 invariant: events on track -3 are never written.
	}
	if targetTrack < 0 || targetTrack >= len(d.Tracks) {
		return
	}

	isNoteOn := rewritten.IsNoteOn()
	isNoteOff := rewritten.IsNoteOff()
	if isNoteOn || isNoteOff {
		ch := channel
		if ch < 0 {
			ch = 0
		}
		note := rewritten.Data1
		if isNoteOn {
			dev.SetNoteActive(targetTrack, uint8(ch), note, true, targetTrack)
		} else {
			// Force the note-off to the on-note's originally chosen track.
			targetTrack = dev.SetNoteActive(0, uint8(ch), note, false, targetTrack)
		}
	}

	track := d.Tracks[targetTrack]

	if isNoteOn || isNoteOff {
		rewrittenNote, ok := router.ApplyLock(track.LockStyle, int(rewritten.Data1), track.Scale, track.Key)
		if !ok {
			return
		}
		rewritten.Data1 = byte(rewrittenNote)
	}

	d.route(dev, track, rewritten, channel)
	d.listeners.emit(d.passthroughKindFor(dev, track), rewritten)
}

func (d *Dispatcher) route(srcDev *router.Device, track *sketchpad.Track, ev midi.Event, channel int) {
	switch track.Destination {
	case sketchpad.ZynthianDestination:
		if out := d.deviceByID[midi.DeviceID(track.DeviceID)]; out != nil {
			out.WriteEventToOutput(ev, -1)
		}
		for _, slot := range track.ZynthianChannels() {
			if sd, ok := d.zynthianSlots[slot]; ok {
				sd.WriteEventToOutput(ev, track.ZynthianChannelMap[slot])
			}
		}
		if channel >= 0 && channel == srcDev.ZynthianMasterChannel {
			d.broadcastAllOutputs(ev, -1)
		}
	case sketchpad.SamplerDestination:
		// No synth-graph write: the sample engine is fed by the pattern
		// engine's clip-command path (spec.md §4.4 point 8), not live
		// dispatch of router-matched note events.
	case sketchpad.ExternalDestination:
		d.broadcastAllOutputs(ev, track.ResolvedExternalChannel())
	case sketchpad.NoDestination:
		// drop
	}
}

func (d *Dispatcher) broadcastAllOutputs(ev midi.Event, channelOverride int) {
	for _, out := range d.Devices {
		if out == nil || out.IsDisabled() || !out.OutputEnabled {
			continue
		}
		out.WriteEventToOutput(ev, channelOverride)
	}
}

func (d *Dispatcher) passthroughKindFor(dev *router.Device, track *sketchpad.Track) ListenerKind {
	if dev.Types.Has(router.HardwareDeviceType) {
		return HardwareInListener
	}
	if track.Destination == sketchpad.ExternalDestination {
		return ExternalOutListener
	}
	if dev.Types.Has(router.ControllerType) {
		return InternalControllerPassthroughListener
	}
	return InternalPassthroughListener
}
