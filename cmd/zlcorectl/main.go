// Command zlcorectl is a standalone control console: it wires the same
// dispatch/synctimer/sequence/playfield/segment stack as zlcore-run but
// drives it from a simulated clock instead of a JACK process callback,
// for interactive testing of per-track solo and start/stop without real
// hardware.
//
// Grounded on chriskillpack-modplayer/cmd/modplay/play.go's AudioPlayer
// keyboard/UI loop: setupKeyboardHandlers+handleKeyPress (atomicgo
// keyboard.Listen, left/right track selection, space to toggle
// playback, ctrl-c/escape to quit) and its color-coded renderHeader/
// renderChannelHeaders idiom (fatih/color SprintfFunc per field).
package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/fatih/color"

	"github.com/openzl/zlcore/dispatch"
	"github.com/openzl/zlcore/engine"
	"github.com/openzl/zlcore/playfield"
	"github.com/openzl/zlcore/router"
	"github.com/openzl/zlcore/segment"
	"github.com/openzl/zlcore/sequence"
	"github.com/openzl/zlcore/sketchpad"
	"github.com/openzl/zlcore/synctimer"
)

var (
	white  = color.New(color.FgWhite).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()

	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"
)

var (
	flagBPM        = flag.Float64("bpm", 120, "simulated tempo in beats per minute")
	flagMultiplier = flag.Int("ticks-per-beat", 128, "sync timer ticks per beat")
)

// console holds every piece of interactive state the keyboard handler
// and the render loop touch; fields beyond the embedded engine are
// control-thread-only (no audio thread exists in this simulator).
type console struct {
	e     *engine.Engine
	seq   *sequence.Controller
	timer *synctimer.Timer

	mu             sync.Mutex
	selectedTrack  int
	running        bool
	soloMirror     [sketchpad.NumTracks][sketchpad.NumClips]bool
	quitCh         chan struct{}
	keyboardDoneCh chan struct{}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("zlcorectl: ")
	flag.Parse()

	tracks := make([]*sketchpad.Track, sketchpad.NumTracks)
	for i := range tracks {
		tracks[i] = sketchpad.NewTrack(i)
	}
	devices := []*router.Device{router.NewDevice(0, "simulated")}
	d := dispatch.New(devices, tracks, nil)

	timer := synctimer.New(synctimer.Config{
		Multiplier: *flagMultiplier,
		SampleRate: 48000,
	}, *flagBPM)

	seq := sequence.New(timer)
	pf := playfield.New(int64(*flagMultiplier)*4, nil)
	seg := segment.New(nil)
	e := engine.New(timer, d, seq, pf, seg, nil)

	c := &console{
		e:              e,
		seq:            seq,
		timer:          timer,
		quitCh:         make(chan struct{}),
		keyboardDoneCh: make(chan struct{}),
	}

	fmt.Print(hideCursor)
	defer fmt.Print(showCursor)

	c.setupKeyboardHandlers()
	c.runSimulatedClock()
}

// runSimulatedClock advances the engine by a fixed frame count every
// tick interval, standing in for JACK's process callback, and redraws
// the console after each advance.
func (c *console) runSimulatedClock() {
	const frameRate = 48000.0
	bpm := *flagBPM
	ticksPerBeat := float64(*flagMultiplier)

	framesPerTick := frameRate * 60 / (bpm * ticksPerBeat)
	ticksPerSecond := bpm * ticksPerBeat / 60
	ticker := time.NewTicker(time.Duration(float64(time.Second) / ticksPerSecond))
	defer ticker.Stop()

	for {
		select {
		case <-c.quitCh:
			<-c.keyboardDoneCh
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.running {
				c.e.ProcessCycle(int64(framesPerTick))
			}
			c.render()
			c.mu.Unlock()
		}
	}
}

func (c *console) setupKeyboardHandlers() {
	go func() {
		keyboard.Listen(func(key keys.Key) (stop bool, err error) {
			if key.Code == keys.CtrlC || key.Code == keys.Escape {
				close(c.quitCh)
				return true, nil
			}
			c.handleKeyPress(key)
			return false, nil
		})
		close(c.keyboardDoneCh)
	}()
}

func (c *console) handleKeyPress(key keys.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch key.Code {
	case keys.Left:
		c.selectedTrack = max(c.selectedTrack-1, 0)
	case keys.Right:
		c.selectedTrack = min(c.selectedTrack+1, sketchpad.NumTracks-1)
	case keys.Space:
		c.running = !c.running
	case keys.RuneKey:
		if len(key.Runes) > 0 && key.Runes[0] == 's' {
			track, clip := c.selectedTrack, 0
			newSolo := !c.soloMirror[track][clip]
			c.seq.SetSolo(track, clip, newSolo)
			c.soloMirror[track][clip] = newSolo
		}
	}
}

func (c *console) render() {
	fmt.Print(escape + "H" + escape + "2J")
	fmt.Println(white("zlcorectl - tick %d", c.timer.CurrentTick()))
	fmt.Println()
	for t := 0; t < sketchpad.NumTracks; t++ {
		label := fmt.Sprintf("track %2d", t)
		if t == c.selectedTrack {
			label = green(">%s<", label)
		} else {
			label = white(" %s ", label)
		}
		state := yellow("solo=%v", c.soloMirror[t][0])
		fmt.Println(label, state)
	}
	fmt.Println()
	if c.running {
		fmt.Println(green("running"))
	} else {
		fmt.Println(red("stopped"))
	}
	fmt.Println(white("left/right: select track   space: start/stop   s: solo selected track   esc/ctrl-c: quit"))
}
