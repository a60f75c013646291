package jackio

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openzl/zlcore/engine"
	"github.com/openzl/zlcore/midi"
	"github.com/openzl/zlcore/router"
	"github.com/xthexder/go-jack"
)

// reconnectDebounce is spec.md §6's "~300ms" debounce on hardware
// port-registration churn.
const reconnectDebounce = 300 * time.Millisecond

// portBinding ties one router.Device to the real JACK ports backing its
// input and/or output sides.
type portBinding struct {
	device   *router.Device
	inPort   *jack.Port
	outPort  *jack.Port
}

// Client owns the real JACK client and every port it has registered: the
// fixed internal ports spec.md §6 names. Hardware ports it discovers are
// reported through HardwareFound, not registered. It drives
// engine.Engine.ProcessCycle once per JACK process callback.
//
// Grounded on other_examples/GeoffreyPlitt-gosfzplayer's JackClient
// (ClientOpen/PortRegister/SetProcessCallback, per-cycle MIDI event
// iteration) generalized from one audio+MIDI-in port pair to the full
// internal-port set spec.md §6 requires, plus output-side buffer
// flushing.
type Client struct {
	client *jack.Client
	engine *engine.Engine

	// bindings is published the way pattern.Publisher publishes a
	// Pattern (spec.md §5): Bind clones-then-swaps a fresh slice so
	// processCallback's read is a single atomic load, never a lock.
	bindings  atomic.Pointer[[]*portBinding]
	bindingMu sync.Mutex // serializes concurrent Bind callers only

	reconnectTimer *time.Timer
	reconnectMu    sync.Mutex

	// HardwareFound is called from the control thread (never the audio
	// thread) whenever a new hardware port is discovered, so the caller
	// can construct and register a router.Device for it.
	HardwareFound func(hardwareID, portName string, isInput bool)
}

// Open opens a JACK client under name and registers every fixed internal
// port spec.md §6 names. It does not activate the client; call Activate
// once the engine and its devices are fully wired.
func Open(name string, e *engine.Engine) (*Client, error) {
	raw, status := jack.ClientOpen(name, jack.NoStartServer)
	if status != 0 {
		return nil, fmt.Errorf("jackio: opening client %q: jack status %d", name, status)
	}

	c := &Client{client: raw, engine: e}
	c.bindings.Store(&[]*portBinding{})

	if err := c.registerFixedPorts(); err != nil {
		raw.Close()
		return nil, err
	}

	raw.SetProcessCallback(c.processCallback)
	raw.SetPortRegistrationCallback(c.onPortRegistration)

	return c, nil
}

func (c *Client) registerFixedPorts() error {
	inputs := []string{MasterTrackSequencerInputName, MasterTrackControllerInputName, TransportMidiInName}
	for n := 0; n < SketchpadTracks; n++ {
		inputs = append(inputs, TrackSequencerInputName(n), TrackControllerInputName(n))
	}
	for _, name := range inputs {
		if _, err := c.client.PortRegister(name, jack.DEFAULT_MIDI_TYPE, jack.PortIsInput, 0); err != nil {
			return fmt.Errorf("jackio: registering input port %q: %w", name, err)
		}
	}

	outputs := []string{TransportMidiOutName, PassthroughOutName, CurrentTrackMirrorName}
	for n := 0; n < SketchpadTracks; n++ {
		outputs = append(outputs, TrackChannelOutputName(n))
	}
	for s := 0; s < ZynthianSlots; s++ {
		outputs = append(outputs, ZynthianChannelOutputName(s))
	}
	for _, name := range outputs {
		if _, err := c.client.PortRegister(name, jack.DEFAULT_MIDI_TYPE, jack.PortIsOutput, 0); err != nil {
			return fmt.Errorf("jackio: registering output port %q: %w", name, err)
		}
	}
	return nil
}

// Activate activates the underlying JACK client, starting process
// callback invocation.
func (c *Client) Activate() error {
	return c.client.Activate()
}

// Close deactivates and closes the JACK client.
func (c *Client) Close() error {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	if err := c.client.Deactivate(); err != nil {
		return err
	}
	return c.client.Close()
}

// Bind associates a router.Device with a concrete input/output JACK
// port pair (by name). Either port name may be empty if the device is
// input-only or output-only.
func (c *Client) Bind(dev *router.Device, inPortName, outPortName string) error {
	c.bindingMu.Lock()
	defer c.bindingMu.Unlock()

	b := &portBinding{device: dev}
	if inPortName != "" {
		p := c.client.GetPortByName(inPortName)
		if p == nil {
			return fmt.Errorf("jackio: no such input port %q", inPortName)
		}
		b.inPort = p
	}
	if outPortName != "" {
		p := c.client.GetPortByName(outPortName)
		if p == nil {
			return fmt.Errorf("jackio: no such output port %q", outPortName)
		}
		b.outPort = p
	}

	old := *c.bindings.Load()
	next := make([]*portBinding, 0, len(old)+1)
	for _, existing := range old {
		if existing.device.ID != dev.ID {
			next = append(next, existing)
		}
	}
	next = append(next, b)
	c.bindings.Store(&next)
	return nil
}

// processCallback is the JACK audio-thread entry point. It must not
// block, allocate off a preallocated scratch buffer, or lock anything
// the control thread can hold for long (spec.md §5).
func (c *Client) processCallback(nframes uint32) int {
	bindings := *c.bindings.Load()

	for _, b := range bindings {
		if b.inPort == nil {
			continue
		}
		events := readMidiEvents(b.inPort, nframes, b.device.ID)
		b.device.ProcessBegin(events)
	}

	c.engine.ProcessCycle(int64(nframes))

	for _, b := range bindings {
		if b.outPort == nil {
			continue
		}
		writeMidiEvents(b.outPort, nframes, b.device.OutputEvents())
	}

	return 0
}

// readMidiEvents copies every event in a JACK MIDI input port's buffer
// into midi.Event values tagged with the owning device.
func readMidiEvents(port *jack.Port, nframes uint32, dev midi.DeviceID) []midi.Event {
	buf := port.GetBuffer(nframes)
	count := jack.MidiGetEventCount(buf)
	if count == 0 {
		return nil
	}
	events := make([]midi.Event, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, err := jack.MidiEventGet(buf, i)
		if err != nil || len(raw.Buffer) == 0 {
			continue
		}
		events = append(events, eventFromBytes(raw.Buffer, uint32(raw.Time)))
	}
	return events
}

// eventFromBytes parses a raw JACK MIDI event payload into a midi.Event.
func eventFromBytes(raw []byte, frameOffset uint32) midi.Event {
	if raw[0] == midi.StatusSysExStart {
		return midi.Event{Status: raw[0], Size: len(raw), SysEx: append([]byte(nil), raw...), FrameOffset: frameOffset}
	}
	ev := midi.Event{Status: raw[0], Size: len(raw), FrameOffset: frameOffset}
	if len(raw) > 1 {
		ev.Data1 = raw[1]
	}
	if len(raw) > 2 {
		ev.Data2 = raw[2]
	}
	return ev
}

// writeMidiEvents clears the output port's buffer and writes each event
// at its recorded frame offset, in non-decreasing order as spec.md §6
// requires.
func writeMidiEvents(port *jack.Port, nframes uint32, events []midi.Event) {
	buf := port.GetBuffer(nframes)
	jack.MidiClearBuffer(buf)
	for _, ev := range events {
		data := ev.Bytes()
		if err := jack.MidiEventWrite(buf, ev.FrameOffset, data, nframes); err != nil {
			continue // spec.md §7: malformed/oversized event, skip and count elsewhere
		}
	}
}

// onPortRegistration is JACK's registration callback; it debounces
// rapid churn (hot-plug bounce) before notifying HardwareFound, per
// spec.md §6's ~300ms debounce.
func (c *Client) onPortRegistration(port jack.PortId, register bool) {
	if !register || c.HardwareFound == nil {
		return
	}
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(reconnectDebounce, func() {
		c.discoverHardware()
	})
}

// discoverHardware enumerates physical MIDI ports not already bound to a
// router.Device and reports them via HardwareFound.
func (c *Client) discoverHardware() {
	names := c.client.GetPorts("", jack.DEFAULT_MIDI_TYPE, jack.PortIsPhysical)
	for _, name := range names {
		isInput := c.portIsInputSide(name)
		hwID := hardwareIDFromPortName(name)
		log.Printf("jackio: discovered hardware port %s (hardware id %s)", name, hwID)
		c.HardwareFound(hwID, name, isInput)
	}
}

func (c *Client) portIsInputSide(name string) bool {
	p := c.client.GetPortByName(name)
	if p == nil {
		return false
	}
	return p.Flags()&jack.PortIsInput != 0
}

// hardwareIDFromPortName derives a stable hardware id from a JACK port
// name, identifying the USB serial-MIDI bridge by its name prefix
// (spec.md §6).
func hardwareIDFromPortName(name string) string {
	if len(name) > len(HardwareBridgePrefix) && name[:len(HardwareBridgePrefix)] == HardwareBridgePrefix {
		return name[len(HardwareBridgePrefix):]
	}
	return name
}
