package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/openzl/zlcore/pattern"
)

// patternFile is the JSON shape spec.md §6 names for one persisted
// pattern file.
type patternFile struct {
	Height              int         `json:"height"`
	Width               int         `json:"width"`
	NoteDestination     string      `json:"noteDestination"`
	MidiChannel         int         `json:"midiChannel"`
	DefaultNoteDuration int         `json:"defaultNoteDuration"`
	StepLength          int         `json:"stepLength"`
	Swing               int         `json:"swing"`
	PatternLength       int         `json:"patternLength"`
	BankOffset          int         `json:"bankOffset"`
	BankLength          int         `json:"bankLength"`
	Enabled             bool        `json:"enabled"`
	Scale               string      `json:"scale"`
	Pitch               int         `json:"pitch"`
	Octave              int         `json:"octave"`
	LockToKeyAndScale   bool        `json:"lockToKeyAndScale"`
	Notes               [][]stepJSON `json:"notes"`
}

type stepJSON struct {
	Note      *noteJSON       `json:"note,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Keyeddata json.RawMessage `json:"keyeddata,omitempty"`
}

type noteJSON struct {
	MidiNote       int           `json:"midiNote"`
	SketchpadTrack int           `json:"sketchpadTrack"`
	Subnotes       []subnoteJSON `json:"subnotes,omitempty"`
}

type subnoteJSON struct {
	MidiNote           int `json:"midiNote"`
	Velocity           int `json:"velocity"`
	Delay              int `json:"delay"`
	Duration           int `json:"duration"`
	Probability        int `json:"probability"`
	RatchetCount       int `json:"ratchetCount"`
	RatchetStyle       int `json:"ratchetStyle"`
	RatchetProbability int `json:"ratchetProbability"`
}

var destinationNames = map[string]pattern.Destination{
	"synth":        pattern.SynthDestination,
	"external":     pattern.ExternalDestination,
	"sample-trig":  pattern.SampleTrigger,
	"sample-slice": pattern.SampleSliced,
}

var destinationStrings = map[pattern.Destination]string{
	pattern.SynthDestination:    "synth",
	pattern.ExternalDestination: "external",
	pattern.SampleTrigger:       "sample-trig",
	pattern.SampleSliced:        "sample-slice",
}

// DecodePattern parses one pattern JSON file's bytes into a
// *pattern.Pattern.
func DecodePattern(data []byte) (*pattern.Pattern, error) {
	var pf patternFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("config: decoding pattern: %w", err)
	}

	p := pattern.NewPattern(pf.Width, pf.PatternLength, pf.BankLength)
	p.BankOffset = pf.BankOffset
	p.Swing = pf.Swing
	p.MidiChannel = pf.MidiChannel
	p.Playing = pf.Enabled
	if d, ok := destinationNames[pf.NoteDestination]; ok {
		p.Destination = d
	}
	if nl, ok := noteLengthForStepLength(pf.StepLength); ok {
		p.NoteLength = nl
	}

	for row := range pf.Notes {
		if row >= len(p.Steps) {
			break
		}
		for col, step := range pf.Notes[row] {
			if col >= len(p.Steps[row]) {
				break
			}
			if step.Note == nil {
				continue
			}
			p.Steps[row][col].Subnotes = subnotesFromJSON(*step.Note)
		}
	}

	return p, nil
}

func subnotesFromJSON(n noteJSON) []pattern.Subnote {
	if len(n.Subnotes) == 0 {
		sub := pattern.NewSubnote(n.MidiNote)
		return []pattern.Subnote{sub}
	}
	subs := make([]pattern.Subnote, 0, len(n.Subnotes))
	for _, s := range n.Subnotes {
		sub := pattern.NewSubnote(s.MidiNote)
		sub.Velocity = s.Velocity
		sub.Delay = int64(s.Delay)
		sub.Duration = int64(s.Duration)
		sub.Probability = s.Probability
		sub.RatchetCount = s.RatchetCount
		sub.RatchetStyle = pattern.RatchetStyle(s.RatchetStyle)
		sub.RatchetProbability = s.RatchetProbability
		subs = append(subs, sub)
	}
	return subs
}

// EncodePattern serializes p into spec.md §6's pattern JSON layout.
func EncodePattern(p *pattern.Pattern) ([]byte, error) {
	pf := patternFile{
		Height:          p.AvailableBars,
		Width:           p.Width,
		NoteDestination: destinationStrings[p.Destination],
		MidiChannel:     p.MidiChannel,
		StepLength:      stepLengthForNoteLength(p.NoteLength),
		Swing:           p.Swing,
		PatternLength:   p.AvailableBars,
		BankOffset:      p.BankOffset,
		BankLength:      p.BankLength,
		Enabled:         p.Playing,
	}

	pf.Notes = make([][]stepJSON, len(p.Steps))
	for row := range p.Steps {
		pf.Notes[row] = make([]stepJSON, len(p.Steps[row]))
		for col, step := range p.Steps[row] {
			if len(step.Subnotes) == 0 {
				continue
			}
			pf.Notes[row][col] = stepJSON{Note: noteJSONFromSubnotes(step.Subnotes)}
		}
	}

	return json.MarshalIndent(pf, "", "  ")
}

func noteJSONFromSubnotes(subs []pattern.Subnote) *noteJSON {
	n := &noteJSON{MidiNote: subs[0].Note}
	if len(subs) == 1 && subs[0] == pattern.NewSubnote(subs[0].Note) {
		return n
	}
	n.Subnotes = make([]subnoteJSON, 0, len(subs))
	for _, s := range subs {
		n.Subnotes = append(n.Subnotes, subnoteJSON{
			MidiNote:           s.Note,
			Velocity:           s.Velocity,
			Delay:              int(s.Delay),
			Duration:           int(s.Duration),
			Probability:        s.Probability,
			RatchetCount:       s.RatchetCount,
			RatchetStyle:       int(s.RatchetStyle),
			RatchetProbability: s.RatchetProbability,
		})
	}
	return n
}

// noteLengthForStepLength maps a persisted integer step-length (in base
// subdivision units, spec.md §4.5) to the nearest NoteLength.
func noteLengthForStepLength(units int) (pattern.NoteLength, bool) {
	best := pattern.NoteLength(0)
	bestDiff := -1
	for nl, u := range unitsPerStepMirror() {
		diff := u - units
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = nl
		}
	}
	return best, best != 0
}

func stepLengthForNoteLength(nl pattern.NoteLength) int {
	return unitsPerStepMirror()[nl]
}

// unitsPerStepMirror mirrors pattern.unitsPerStep's base-subdivision
// table (spec.md §3's literal table, ticks-per-step at multiplier=128);
// duplicated here rather than exported from pattern, since the mapping
// is purely a persistence-layer concern.
func unitsPerStepMirror() map[pattern.NoteLength]int {
	return map[pattern.NoteLength]int{
		pattern.NoteLength32nd:  32,
		pattern.NoteLength16th:  16,
		pattern.NoteLength8th:   8,
		pattern.NoteLength4th:   4,
		pattern.NoteLengthHalf:  2,
		pattern.NoteLengthWhole: 1,
	}
}

// SequenceDir lays out spec.md §6's persisted-state directory: one
// metadata file and one patterns subdirectory, each pattern file named
// "<track>-<clip>.json".
type SequenceDir struct {
	Root string
}

func (s SequenceDir) patternsDir() string { return filepath.Join(s.Root, "patterns") }

func (s SequenceDir) patternPath(track, clip int) string {
	return filepath.Join(s.patternsDir(), fmt.Sprintf("%d-%d.json", track, clip))
}

// LoadPattern reads and decodes one (track, clip)'s persisted pattern.
func (s SequenceDir) LoadPattern(track, clip int) (*pattern.Pattern, error) {
	data, err := os.ReadFile(s.patternPath(track, clip))
	if err != nil {
		return nil, err
	}
	return DecodePattern(data)
}

// SavePattern encodes and writes one (track, clip)'s pattern.
func (s SequenceDir) SavePattern(track, clip int, p *pattern.Pattern) error {
	if err := os.MkdirAll(s.patternsDir(), 0o755); err != nil {
		return err
	}
	data, err := EncodePattern(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.patternPath(track, clip), data, 0o644)
}

// ReloadFunc is called with a pattern file's path when fsnotify observes
// an external write to it.
type ReloadFunc func(path string)

// Watcher watches a SequenceDir's patterns subdirectory for external
// edits (e.g. a UI process rewriting a pattern JSON file directly) and
// invokes onReload so the caller can re-decode and push the result
// through the owning Publisher's double-buffer swap.
//
// Grounded on SPEC_FULL.md's domain-stack entry for
// github.com/fsnotify/fsnotify: "watches a persisted-state directory...
// triggers a reload-and-publish cycle through the same double-buffer
// swap as control-thread edits."
type Watcher struct {
	fsw *fsnotify.Watcher
}

// Watch starts watching dir.patternsDir(); onReload is called (from a
// control-thread goroutine, never the audio thread) for every Write or
// Create event.
func Watch(dir SequenceDir, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}
	if err := os.MkdirAll(dir.patternsDir(), 0o755); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(dir.patternsDir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watching %q: %w", dir.patternsDir(), err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && onReload != nil {
					onReload(ev.Name)
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
