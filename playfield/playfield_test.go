package playfield

import "testing"

type fakeClipSink struct {
	started, stopped []ClipKey
}

func (f *fakeClipSink) StartClip(track, clip int) {
	f.started = append(f.started, ClipKey{Track: track, Clip: clip})
}
func (f *fakeClipSink) StopClip(track, clip int) {
	f.stopped = append(f.stopped, ClipKey{Track: track, Clip: clip})
}

func TestCurrentPositionCommitsImmediately(t *testing.T) {
	sink := &fakeClipSink{}
	m := New(96, sink)

	m.SetClipPlaystate(0, 2, 1, Playing, Current, 10)

	if got := m.ClipPlaystate(0, 2, 1, Current); got != Playing {
		t.Errorf("expected immediate commit, got state %v", got)
	}
	if len(sink.started) != 1 {
		t.Fatalf("expected one start notification, got %d", len(sink.started))
	}
	if m.ClipOffset(0, 2, 1) != 10 {
		t.Errorf("expected offset 10 recorded, got %d", m.ClipOffset(0, 2, 1))
	}
}

func TestNextBarStagesUntilBarBoundary(t *testing.T) {
	sink := &fakeClipSink{}
	m := New(96, sink)

	m.SetClipPlaystate(0, 0, 0, Playing, NextBar, -1)

	// Not a bar boundary: no commit yet.
	m.Advance(1)
	if got := m.ClipPlaystate(0, 0, 0, Current); got != Stopped {
		t.Errorf("expected no commit before a bar boundary, got %v", got)
	}

	m.Advance(96) // bar boundary
	if got := m.ClipPlaystate(0, 0, 0, Current); got != Playing {
		t.Errorf("expected commit at the bar boundary, got %v", got)
	}
	if len(sink.started) != 1 {
		t.Errorf("expected exactly one start notification, got %d", len(sink.started))
	}
}

func TestBarBoundaryIsNoOpWhenNothingStaged(t *testing.T) {
	sink := &fakeClipSink{}
	m := New(96, sink)

	m.Advance(96)

	if len(sink.started) != 0 || len(sink.stopped) != 0 {
		t.Errorf("expected no clip notifications with nothing staged")
	}
}

func TestStoppingAPlayingClipNotifiesStop(t *testing.T) {
	sink := &fakeClipSink{}
	m := New(96, sink)
	m.SetClipPlaystate(0, 4, 3, Playing, Current, 0)

	m.SetClipPlaystate(0, 4, 3, Stopped, Current, -1)

	if len(sink.stopped) != 1 {
		t.Errorf("expected one stop notification, got %d", len(sink.stopped))
	}
}
