// Package jackio wires the router/dispatch/synctimer/pattern machinery
// to a real JACK client: it registers the fixed internal ports spec.md
// §6 names, discovers hardware MIDI ports, and drives one JACK process
// callback implementing §5's ordering guarantees.
//
// Grounded on other_examples/GeoffreyPlitt-gosfzplayer's JackClient
// (ClientOpen/PortRegister/SetProcessCallback wiring, MIDI event
// iteration via jack.MidiGetEventCount/MidiEventGet) and on
// chriskillpack-modplayer/cmd/modplay/play.go's AudioPlayer lifecycle
// idiom (context-cancellation-driven Run loop, signal handling).
package jackio

import "fmt"

// SketchpadTracks is the fixed sketchpad track count (spec.md §3).
const SketchpadTracks = 10

// ZynthianSlots is the fixed zynthian-engine output slot count.
const ZynthianSlots = 16

// TrackSequencerInputName is spec.md §6's "SyncTimer:Track<n>-Sequencer"
// internal input port name for sketchpad track n.
func TrackSequencerInputName(track int) string {
	return fmt.Sprintf("SyncTimer:Track%d-Sequencer", track)
}

// TrackControllerInputName is the matching "...-Controller" port.
func TrackControllerInputName(track int) string {
	return fmt.Sprintf("SyncTimer:Track%d-Controller", track)
}

const (
	MasterTrackSequencerInputName  = "SyncTimer:MasterTrack-Sequencer"
	MasterTrackControllerInputName = "SyncTimer:MasterTrack-Controller"
	TransportMidiOutName           = "TransportManager:midi_out"
	TransportMidiInName            = "TransportManager:midi_in"

	PassthroughOutName      = "ZLRouter:PassthroughOut"
	CurrentTrackMirrorName  = "ZLRouter:CurrentTrackMirror"
)

// TrackChannelOutputName is "ZLRouter:Channel<n>" for a sketchpad track
// output port.
func TrackChannelOutputName(track int) string {
	return fmt.Sprintf("ZLRouter:Channel%d", track)
}

// ZynthianChannelOutputName is "ZLRouter:Zynthian-Channel<c>" for a
// synth-engine slot output port.
func ZynthianChannelOutputName(slot int) string {
	return fmt.Sprintf("ZLRouter:Zynthian-Channel%d", slot)
}

// HardwareBridgePrefix identifies the USB serial-MIDI bridge by port
// name (spec.md §6).
const HardwareBridgePrefix = "ttymidi:MIDI_"
