package dispatch

import (
	"testing"

	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/router"
	"github.com/openzl/zlcore/sketchpad"
)

// TestScenarioASimpleRoutingMirrorsZynthianSlots exercises spec.md §8
// Scenario A in full: a note-on routed to a ZynthianDestination track
// carries on the track's own output device AND on every zynthian slot
// device the track maps a channel onto, note-activation is recorded on
// the input device, and the matching note-off routes to exactly the
// same set of outputs.
func TestScenarioASimpleRoutingMirrorsZynthianSlots(t *testing.T) {
	in := router.NewDevice(1, "hw-in")
	trackOut := router.NewDevice(2, "track3-out")
	slot0 := router.NewDevice(3, "zynthian-slot0")
	slot2 := router.NewDevice(4, "zynthian-slot2")

	tr := newTestTrack(3, 2, sketchpad.ZynthianDestination)
	tr.ZynthianChannelMap[0] = 5
	tr.ZynthianChannelMap[2] = 7

	tracks := make([]*sketchpad.Track, sketchpad.NumTracks)
	for i := range tracks {
		tracks[i] = sketchpad.NewTrack(i)
	}
	tracks[3] = tr

	zynthianSlots := map[int]*router.Device{0: slot0, 2: slot2}
	d := New([]*router.Device{in, trackOut, slot0, slot2}, tracks, zynthianSlots)
	d.SetCurrentTrack(3)

	in.ProcessBegin([]midi.Event{midi.NoteOn(0, 60, 100)})
	d.Dispatch()

	assertSingleNoteOn(t, trackOut, 60)
	assertSingleNoteOn(t, slot0, 60)
	assertSingleNoteOn(t, slot2, 60)
	if got := slot0.OutputEvents()[0].Channel(); got != 5 {
		t.Fatalf("slot0: expected channel 5, got %d", got)
	}
	if got := slot2.OutputEvents()[0].Channel(); got != 7 {
		t.Fatalf("slot2: expected channel 7, got %d", got)
	}
	if in.NoteActivationTrack(0, 60) != 3 {
		t.Fatalf("expected note-activation to record track 3")
	}

	// A new cycle: reset every output buffer before the note-off.
	trackOut.ProcessBegin(nil)
	slot0.ProcessBegin(nil)
	slot2.ProcessBegin(nil)
	in.ProcessBegin([]midi.Event{midi.NoteOff(0, 60)})
	d.Dispatch()

	assertSingleNoteOff(t, trackOut, 60)
	assertSingleNoteOff(t, slot0, 60)
	assertSingleNoteOff(t, slot2, 60)
}

func assertSingleNoteOn(t *testing.T, dev *router.Device, note byte) {
	t.Helper()
	got := dev.OutputEvents()
	if len(got) != 1 || !got[0].IsNoteOn() || got[0].Data1 != note {
		t.Fatalf("%s: expected one note-on for %d, got %v", dev.Name, note, got)
	}
}

func assertSingleNoteOff(t *testing.T, dev *router.Device, note byte) {
	t.Helper()
	got := dev.OutputEvents()
	if len(got) != 1 || !got[0].IsNoteOff() || got[0].Data1 != note {
		t.Fatalf("%s: expected one note-off for %d, got %v", dev.Name, note, got)
	}
}
