package engine

import (
	"testing"

	"github.com/openzl/zlcore/dispatch"
	"github.com/openzl/zlcore/pattern"
	"github.com/openzl/zlcore/playfield"
	"github.com/openzl/zlcore/router"
	"github.com/openzl/zlcore/segment"
	"github.com/openzl/zlcore/sequence"
	"github.com/openzl/zlcore/sketchpad"
	"github.com/openzl/zlcore/synctimer"
)

type fakeClipSink struct {
	handled []synctimer.ClipCommand
}

func (f *fakeClipSink) HandleClipCommand(cmd synctimer.ClipCommand) {
	f.handled = append(f.handled, cmd)
}

func newTestEngine(t *testing.T) (*Engine, *synctimer.Timer) {
	t.Helper()
	dev := router.NewDevice(1, "track0-out")
	track := &sketchpad.Track{DeviceID: 1, Destination: sketchpad.ZynthianDestination}
	d := dispatch.New([]*router.Device{dev}, []*sketchpad.Track{track}, nil)

	timer := synctimer.New(synctimer.Config{Multiplier: 128, SampleRate: 48000}, 120)
	timer.Start()

	seq := sequence.New(nil)
	pf := playfield.New(96, nil)
	seg := segment.New(timer)

	return New(timer, d, seq, pf, seg, &fakeClipSink{}), timer
}

func TestProcessCycleAdvancesTimerAndDrivesControllers(t *testing.T) {
	e, timer := newTestEngine(t)

	p := pattern.NewPattern(16, 1, 8)
	p.NoteLength = pattern.NoteLength4th
	p.Steps[0][0].Subnotes = []pattern.Subnote{pattern.NewSubnote(60)}
	p.Playing = true
	pub := pattern.NewPublisher(p)
	pe := pattern.NewEngine(pub, pattern.Track{Index: 0, MappedChannels: []int{0}}, timer.Multiplier(), timer)
	e.Sequence.SetEngine(0, 0, pe)

	before := timer.CurrentTick()
	e.ProcessCycle(48000) // a full second of frames, guaranteed to cross ticks

	if timer.CurrentTick() <= before {
		t.Errorf("expected the timer to have advanced, stayed at %d", timer.CurrentTick())
	}
}

func TestStopStopsTimerAndSequence(t *testing.T) {
	e, timer := newTestEngine(t)

	e.Stop()

	if timer.Running() {
		t.Errorf("expected Stop to stop the sync timer")
	}
}
