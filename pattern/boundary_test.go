package pattern

import "testing"

// TestBoundaryStepTicksEvenlySpaced exercises spec.md §8's boundary
// behavior literally: a pattern with availableBars=1, width=16,
// note-length=3 (NoteLength8th) produces exactly 16 step-boundary
// ticks per loop, evenly spaced 8 ticks apart at multiplier=128.
func TestBoundaryStepTicksEvenlySpaced(t *testing.T) {
	p := NewPattern(16, 1, 8)
	p.NoteLength = NoteLength8th

	ticksPerStep := p.TicksPerStep(128)
	if ticksPerStep != 8 {
		t.Fatalf("expected 8 ticks/step, got %d", ticksPerStep)
	}

	loopLength := int64(p.AvailableBars) * int64(p.Width) * ticksPerStep
	if loopLength != 128 {
		t.Fatalf("expected a 128-tick loop, got %d", loopLength)
	}

	var boundaries []int64
	for tick := int64(0); tick < loopLength; tick++ {
		if stepBoundary(tick, ticksPerStep) {
			boundaries = append(boundaries, tick)
		}
	}

	if len(boundaries) != 16 {
		t.Fatalf("expected 16 step-boundary ticks, got %d: %v", len(boundaries), boundaries)
	}
	for i, tick := range boundaries {
		want := int64(i) * 8
		if tick != want {
			t.Errorf("boundary %d: expected tick %d, got %d", i, want, tick)
		}
	}
}
