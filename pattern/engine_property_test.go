package pattern

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSwingFiftyIsAlwaysANoOp exercises spec.md §8's universal
// invariant 2: swing=50 never offsets a step's scheduling delay, for
// any ticksPerStep/stepIndex pair a real pattern can produce. Since
// swingOffset is the only place swing enters the scheduling path, a
// zero offset for every step is equivalent to the emitted event set
// being byte-for-byte identical to an unswung pattern.
func TestSwingFiftyIsAlwaysANoOp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("swing=50 offsets nothing regardless of ticksPerStep or step index", prop.ForAll(
		func(ticksPerStep int64, stepIndex int) bool {
			p := NewPattern(16, 1, 8)
			p.Swing = 50
			e := &Engine{Rand: rand.New(rand.NewSource(1))}
			return e.swingOffset(p, ticksPerStep, stepIndex) == 0
		},
		gen.Int64Range(1, 1<<20),
		gen.IntRange(0, 1<<16),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestRatchetChokeAlwaysSharesOneChannel generalizes
// TestRatchetChokeSharesOneChannel across ratchet counts, exercising
// spec.md §8's universal invariant 6: an N-way SplitStepChoke ratchet
// produces N note-ons and N note-offs sharing one channel.
func TestRatchetChokeAlwaysSharesOneChannel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("choke ratchets of any count share one channel and balance on/off pairs", prop.ForAll(
		func(count int) bool {
			p := NewPattern(16, 1, 8)
			p.NoteLength = NoteLength4th
			sub := NewSubnote(60)
			sub.RatchetCount = count
			sub.RatchetStyle = SplitStepChoke
			p.Steps[0][0].Subnotes = []Subnote{sub}
			p.Playing = true
			pub := NewPublisher(p)

			sched := newFakeScheduler()
			e := NewEngine(pub, Track{Index: 0, MappedChannels: []int{3, 7, 11}}, 128, sched)
			e.Advance(0)

			channels := map[int]bool{}
			ons, offs := 0, 0
			for _, b := range sched.buffers {
				for _, ev := range b.evs {
					if ev.IsNoteOn() {
						ons++
						channels[ev.Channel()] = true
					}
					if ev.IsNoteOff() {
						offs++
					}
				}
			}
			return len(channels) == 1 && ons == count && offs == count
		},
		gen.IntRange(2, 8),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
