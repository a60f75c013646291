package sequence

import (
	"testing"

	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/pattern"
	"github.com/openzl/zlcore/synctimer"
)

type recordingSink struct {
	calls []struct {
		buf   []midi.Event
		delay int64
		track int
	}
}

func (s *recordingSink) ScheduleMidiBuffer(buffer []midi.Event, delayTicks int64, sketchpadTrack int) {
	s.calls = append(s.calls, struct {
		buf   []midi.Event
		delay int64
		track int
	}{buf: buffer, delay: delayTicks, track: sketchpadTrack})
}

type countingScheduler struct {
	advances int
}

func (s *countingScheduler) ScheduleMidiBuffer(buffer []midi.Event, delayTicks int64, sketchpadTrack int) {
	s.advances++
}
func (s *countingScheduler) ScheduleClipCommand(cmd *synctimer.ClipCommand, delayTicks int64) {}
func (s *countingScheduler) GetClipCommand() (*synctimer.ClipCommand, error) {
	return &synctimer.ClipCommand{}, nil
}
func (s *countingScheduler) NextAvailableChannel(track int, delayTicks int64, channels []int) (int, bool) {
	if len(channels) == 0 {
		return 0, false
	}
	return channels[0], true
}

func newPlayingEngine(sched pattern.Scheduler) *pattern.Engine {
	p := pattern.NewPattern(16, 1, 8)
	p.NoteLength = pattern.NoteLength4th
	p.Steps[0][0].Subnotes = []pattern.Subnote{pattern.NewSubnote(60)}
	p.Playing = true
	pub := pattern.NewPublisher(p)
	return pattern.NewEngine(pub, pattern.Track{Index: 0, MappedChannels: []int{0}}, 128, sched)
}

func TestAdvanceDrivesAllInstalledEngines(t *testing.T) {
	sched := &countingScheduler{}
	ctrl := New(nil)
	ctrl.SetEngine(0, 0, newPlayingEngine(sched))
	ctrl.SetEngine(3, 2, newPlayingEngine(sched))

	ctrl.Advance(0)

	if sched.advances == 0 {
		t.Fatal("expected both installed engines to schedule something at a step boundary")
	}
}

func TestSoloRestrictsAdvanceToSoloedSlotOnly(t *testing.T) {
	soloSched := &countingScheduler{}
	otherSched := &countingScheduler{}
	ctrl := New(nil)
	ctrl.SetEngine(0, 0, newPlayingEngine(soloSched))
	ctrl.SetEngine(1, 1, newPlayingEngine(otherSched))
	ctrl.SetSolo(0, 0, true)

	ctrl.Advance(0)

	if soloSched.advances == 0 {
		t.Errorf("expected the soloed slot to still advance")
	}
	if otherSched.advances != 0 {
		t.Errorf("expected the non-soloed slot to be skipped while a solo is active, got %d calls", otherSched.advances)
	}
}

func TestStopPostsAllNotesOffToMasterTrack(t *testing.T) {
	sink := &recordingSink{}
	ctrl := New(sink)

	ctrl.Stop()

	if len(sink.calls) != 1 {
		t.Fatalf("expected exactly one scheduled buffer, got %d", len(sink.calls))
	}
	if sink.calls[0].track != MasterTrack {
		t.Errorf("expected the buffer targeted at the master track, got %d", sink.calls[0].track)
	}
	if len(sink.calls[0].buf) != 16 {
		t.Errorf("expected one all-notes-off event per MIDI channel, got %d", len(sink.calls[0].buf))
	}
}
