// Command zlcore-run is the production entrypoint: it opens a JACK
// client, wires up every router device named in the TOML config, and
// runs the engine until it receives SIGINT or SIGTERM.
//
// Grounded on chriskillpack-modplayer/cmd/modplay/main.go's startup
// idiom (log.SetFlags(0)+SetPrefix, flag parsing, signal.Notify-driven
// clean shutdown) generalized from a single portaudio stream to a JACK
// client plus the config/engine/jackio wiring spec.md §6 and §9
// describe.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openzl/zlcore/config"
	"github.com/openzl/zlcore/dispatch"
	"github.com/openzl/zlcore/engine"
	"github.com/openzl/zlcore/jackio"
	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/pattern"
	"github.com/openzl/zlcore/playfield"
	"github.com/openzl/zlcore/router"
	"github.com/openzl/zlcore/segment"
	"github.com/openzl/zlcore/sequence"
	"github.com/openzl/zlcore/sketchpad"
	"github.com/openzl/zlcore/synctimer"
)

var (
	flagClientName  = flag.String("name", "zlcore", "JACK client name")
	flagConfigPath  = flag.String("config", "", "path to a zlcore.toml device/filter config (optional)")
	flagSequenceDir = flag.String("sequence-dir", "", "directory holding persisted pattern JSON (optional)")
	flagBPM         = flag.Float64("bpm", 120, "starting tempo in beats per minute")
	flagMultiplier  = flag.Int("ticks-per-beat", 128, "sync timer ticks per beat, a power of two")
	flagSampleRate  = flag.Float64("sample-rate", 48000, "JACK sample rate the sync timer converts frames with; the client's own rate is not queried")
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("zlcore-run: ")
	flag.Parse()

	env := config.LoadEnv()

	var file config.File
	if *flagConfigPath != "" {
		var err error
		file, err = config.LoadFile(*flagConfigPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}

	devices, zynthianSlots := buildDevices(file)
	tracks := buildTracks(file)

	d := dispatch.New(devices, tracks, zynthianSlots)
	d.SetCurrentTrack(0)

	timer := synctimer.New(synctimer.Config{
		Multiplier: *flagMultiplier,
		SampleRate: *flagSampleRate,
	}, *flagBPM)

	seq := sequence.New(timer)
	pf := playfield.New(int64(*flagMultiplier)*4, nil)
	seg := segment.New(nil)

	e := engine.New(timer, d, seq, pf, seg, nil)

	if *flagSequenceDir != "" {
		loadPatterns(*flagSequenceDir, seq, timer)
	}

	client, err := jackio.Open(*flagClientName, e)
	if err != nil {
		log.Fatalf("opening JACK client: %v", err)
	}

	client.HardwareFound = func(hardwareID, portName string, isInput bool) {
		log.Printf("hardware port discovered: %s (%s, input=%v)", hardwareID, portName, isInput)
	}

	bindDevices(client, devices, env)

	if err := client.Activate(); err != nil {
		log.Fatalf("activating JACK client: %v", err)
	}
	log.Printf("running with %d devices, %.1f bpm, %d ticks/beat", len(devices), *flagBPM, *flagMultiplier)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	<-sigch

	log.Print("shutting down")
	// Deactivate the JACK client first: Close blocks until the audio
	// thread has stopped invoking the process callback, so Engine.Stop
	// (a control-thread call, and deliberately lock-free) never races it.
	if err := client.Close(); err != nil {
		log.Printf("closing JACK client: %v", err)
	}
	e.Stop()
}

// buildDevices constructs one router.Device per TOML [device.*] table,
// falling back to a single master device when no config file is given.
func buildDevices(file config.File) ([]*router.Device, map[int]*router.Device) {
	if len(file.Devices) == 0 {
		return []*router.Device{router.NewDevice(0, "master")}, nil
	}

	devices := make([]*router.Device, 0, len(file.Devices))
	byHardwareID := make(map[string]*router.Device, len(file.Devices))
	var id midi.DeviceID
	for hwID, dc := range file.Devices {
		dev := router.NewDevice(id, dc.Name)
		dev.HardwareID = hwID
		dev.Transpose = dc.Transpose
		dev.SendBeatClock = dc.SendBeatClock
		dev.SendTimecode = dc.SendTimecode
		dev.ZynthianMasterChannel = dc.ZynthianMasterChannel
		if len(dc.AcceptedChannels) > 0 {
			dev.AcceptedChannels = router.NewChannelMask(dc.AcceptedChannels...)
		}
		bridgeName := jackio.HardwareBridgePrefix + hwID
		dev.InputPortName = bridgeName
		dev.OutputPortName = bridgeName
		devices = append(devices, dev)
		byHardwareID[hwID] = dev
		id++
	}

	var zynthianSlots map[int]*router.Device
	if len(file.ZynthianChannelMap) > 0 {
		zynthianSlots = make(map[int]*router.Device, len(file.ZynthianChannelMap))
		for slotStr, hwID := range file.ZynthianChannelMap {
			dev, ok := byHardwareID[hwID]
			if !ok {
				continue
			}
			var slot int
			if _, err := fmt.Sscanf(slotStr, "%d", &slot); err == nil {
				zynthianSlots[slot] = dev
			}
		}
	}

	return devices, zynthianSlots
}

// buildTracks constructs the fixed ten sketchpad tracks with
// sketchpad.NewTrack's default field values. file is not read: no track
// field is configured from it, so every track keeps DeviceID 0.
func buildTracks(file config.File) []*sketchpad.Track {
	tracks := make([]*sketchpad.Track, sketchpad.NumTracks)
	for i := range tracks {
		tracks[i] = sketchpad.NewTrack(i)
	}
	return tracks
}

// bindDevices binds every constructed router.Device to its matching
// JACK ports, skipping devices this process has no port names for yet
// (a device discovered later via HardwareFound is bound by whatever
// code owns that callback, outside this minimal entrypoint).
func bindDevices(client *jackio.Client, devices []*router.Device, env config.Env) {
	for _, dev := range devices {
		inName := dev.InputPortName
		outName := dev.OutputPortName
		if inName == "" && outName == "" {
			continue
		}
		if err := client.Bind(dev, inName, outName); err != nil {
			log.Printf("binding device %q: %v", dev.Name, err)
		}
	}
}

// loadPatterns reads every persisted (track, clip) pattern under dir
// and wires it into the sequence controller as a live pattern.Engine
// scheduling through the shared sync timer.
func loadPatterns(dir string, seq *sequence.Controller, sched pattern.Scheduler) {
	sd := config.SequenceDir{Root: dir}
	for track := 0; track < sketchpad.NumTracks; track++ {
		for clip := 0; clip < sketchpad.NumClips; clip++ {
			p, err := sd.LoadPattern(track, clip)
			if err != nil {
				continue
			}
			pub := pattern.NewPublisher(p)
			pt := pattern.Track{Index: track, ExternalChannel: track}
			seq.SetEngine(track, clip, pattern.NewEngine(pub, pt, int64(*flagMultiplier), sched))
		}
	}
}
