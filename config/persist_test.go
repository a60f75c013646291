package config

import (
	"path/filepath"
	"testing"

	"github.com/openzl/zlcore/pattern"
)

func TestEncodeDecodePatternRoundTripsCoreFields(t *testing.T) {
	p := pattern.NewPattern(8, 2, 8)
	p.NoteLength = pattern.NoteLength8th
	p.Swing = 62
	p.Destination = pattern.ExternalDestination
	p.MidiChannel = 3
	p.Playing = true
	p.Steps[0][0].Subnotes = []pattern.Subnote{pattern.NewSubnote(64)}
	sub := pattern.NewSubnote(67)
	sub.RatchetCount = 2
	sub.RatchetStyle = pattern.SplitStepChoke
	p.Steps[1][2].Subnotes = []pattern.Subnote{sub}

	data, err := EncodePattern(p)
	if err != nil {
		t.Fatalf("EncodePattern: %v", err)
	}

	got, err := DecodePattern(data)
	if err != nil {
		t.Fatalf("DecodePattern: %v", err)
	}

	if got.Swing != 62 {
		t.Errorf("expected swing 62, got %d", got.Swing)
	}
	if got.Destination != pattern.ExternalDestination {
		t.Errorf("expected destination preserved, got %v", got.Destination)
	}
	if got.NoteLength != pattern.NoteLength8th {
		t.Errorf("expected note length preserved, got %v", got.NoteLength)
	}
	if len(got.Steps[0][0].Subnotes) != 1 || got.Steps[0][0].Subnotes[0].Note != 64 {
		t.Errorf("expected note 64 at (0,0), got %v", got.Steps[0][0].Subnotes)
	}
	if len(got.Steps[1][2].Subnotes) != 1 || got.Steps[1][2].Subnotes[0].RatchetCount != 2 {
		t.Errorf("expected ratchet count preserved at (1,2), got %v", got.Steps[1][2].Subnotes)
	}
}

func TestSequenceDirSaveAndLoadPattern(t *testing.T) {
	dir := SequenceDir{Root: t.TempDir()}

	p := pattern.NewPattern(16, 1, 8)
	p.Steps[0][3].Subnotes = []pattern.Subnote{pattern.NewSubnote(72)}

	if err := dir.SavePattern(2, 1, p); err != nil {
		t.Fatalf("SavePattern: %v", err)
	}

	got, err := dir.LoadPattern(2, 1)
	if err != nil {
		t.Fatalf("LoadPattern: %v", err)
	}
	if len(got.Steps[0][3].Subnotes) != 1 || got.Steps[0][3].Subnotes[0].Note != 72 {
		t.Errorf("expected round-tripped note 72 at (0,3), got %v", got.Steps[0][3].Subnotes)
	}

	expectedPath := filepath.Join(dir.Root, "patterns", "2-1.json")
	if _, err := dir.LoadPattern(2, 1); err != nil {
		t.Fatalf("expected pattern file at %s to be loadable: %v", expectedPath, err)
	}
}
