package midi

import "testing"

func TestNoteOnOffRoundTrip(t *testing.T) {
	on := NoteOn(2, 60, 100)
	if !on.IsNoteOn() {
		t.Fatalf("expected IsNoteOn, got %v", on)
	}
	if on.Channel() != 2 {
		t.Errorf("expected channel 2, got %d", on.Channel())
	}
	if on.Data1 != 60 || on.Data2 != 100 {
		t.Errorf("unexpected data bytes: %v", on)
	}

	off := NoteOff(2, 60)
	if !off.IsNoteOff() {
		t.Fatalf("expected IsNoteOff, got %v", off)
	}
	if off.Channel() != 2 {
		t.Errorf("expected channel 2, got %d", off.Channel())
	}
}

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	ev := Event{Status: NoteOnStatus | 0x03, Data1: 64, Data2: 0, Size: 3}
	if !ev.IsNoteOff() {
		t.Errorf("note-on with velocity 0 should report IsNoteOff")
	}
	if ev.IsNoteOn() {
		t.Errorf("note-on with velocity 0 should not report IsNoteOn")
	}
}

func TestIsBeatClock(t *testing.T) {
	for _, status := range []byte{StatusTimingClock, StatusStart, StatusContinue, StatusStop, StatusSongPosition} {
		ev := Event{Status: status, Size: 1}
		if !ev.IsBeatClock() {
			t.Errorf("status %#x should be beat clock", status)
		}
	}
	ev := Event{Status: NoteOnStatus, Size: 3}
	if ev.IsBeatClock() {
		t.Errorf("note-on should not be beat clock")
	}
}

func TestSysExBypassesChannelExtraction(t *testing.T) {
	ev := Event{Status: StatusSysExStart, SysEx: []byte{0xF0, 0x7E, 0x00, 0xF7}, Size: 4}
	if !ev.IsSysEx() {
		t.Fatalf("expected sysex")
	}
	if ev.Channel() != -1 {
		t.Errorf("sysex should have channel -1, got %d", ev.Channel())
	}
	if ev.IsChannelVoice() {
		t.Errorf("sysex should not be channel-voice")
	}
}

func TestAllNotesOff(t *testing.T) {
	ev := AllNotesOff(5)
	if ev.StatusNibble() != ControlChangeStatus {
		t.Errorf("expected CC status, got %#x", ev.Status)
	}
	if ev.Data1 != 123 || ev.Data2 != 0 {
		t.Errorf("expected CC 123 value 0, got %d/%d", ev.Data1, ev.Data2)
	}
	if ev.Channel() != 5 {
		t.Errorf("expected channel 5, got %d", ev.Channel())
	}
}
