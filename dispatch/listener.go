package dispatch

import (
	"github.com/openzl/zlcore/internal/ringbuffer"
	"github.com/openzl/zlcore/midi"
)

// ListenerKind names one of the five observability ports spec.md §4.4
// point 9 and SPEC_FULL.md §C.1 describe, mirroring
// original_source/src/MidiRouter.cpp's *PassthroughPort family.
type ListenerKind int

const (
	PassthroughListener ListenerKind = iota
	InternalPassthroughListener
	InternalControllerPassthroughListener
	HardwareInListener
	ExternalOutListener
	numListenerKinds
)

const listenerRingSize = 256

// listenerBank fans dispatched events out to the five observability
// ports. Unlike the hot-path scheduling rings in synctimer, a full
// listener ring drops silently: these are advisory, a control-thread UI
// drains them, and losing an observability sample is not a correctness
// issue (SPEC_FULL.md §C.1).
type listenerBank struct {
	rings [numListenerKinds]*ringbuffer.Ring[midi.Event]
}

func newListenerBank() *listenerBank {
	lb := &listenerBank{}
	for i := range lb.rings {
		lb.rings[i] = ringbuffer.New[midi.Event](listenerRingSize)
	}
	return lb
}

func (lb *listenerBank) emit(kind ListenerKind, ev midi.Event) {
	lb.rings[kind].Push(ev)
}

// Drain removes and returns every event currently queued on kind's
// port, for a control-thread UI to consume.
func (lb *listenerBank) Drain(kind ListenerKind) []midi.Event {
	var out []midi.Event
	for {
		ev, ok := lb.rings[kind].Pop()
		if !ok {
			break
		}
		out = append(out, ev)
	}
	return out
}
