package pattern

import "testing"

func TestTicksPerStepMapsNoteLengthToUnits(t *testing.T) {
	p := NewPattern(16, 2, 8)
	multiplier := int64(128)

	cases := []struct {
		nl   NoteLength
		want int64
	}{
		{NoteLength32nd, 128 * 32 / 128},
		{NoteLength16th, 128 * 16 / 128},
		{NoteLength8th, 128 * 8 / 128},
		{NoteLengthWhole, 128 * 1 / 128},
	}
	for _, c := range cases {
		p.NoteLength = c.nl
		if got := p.TicksPerStep(multiplier); got != c.want {
			t.Errorf("NoteLength=%d: got %d ticks/step, want %d", c.nl, got, c.want)
		}
	}
}

func TestStepAtWrapsIndices(t *testing.T) {
	p := NewPattern(4, 2, 8)
	p.Steps[0][0].Subnotes = []Subnote{NewSubnote(60)}

	got := p.StepAt(2, 4) // wraps to row 0, column 0
	if len(got.Subnotes) != 1 || got.Subnotes[0].Note != 60 {
		t.Errorf("expected wraparound to hit row 0 col 0, got %v", got)
	}

	got = p.StepAt(-2, -4)
	if len(got.Subnotes) != 1 {
		t.Errorf("expected negative wraparound to also hit row 0 col 0, got %v", got)
	}
}
