package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DeviceConfig is one router device's TOML-configured identity and
// defaults, keyed by hardware id in File.Devices.
type DeviceConfig struct {
	Name                  string
	AcceptedChannels      []int `toml:"accepted_channels"`
	Transpose             int
	SendBeatClock         bool `toml:"send_beat_clock"`
	SendTimecode          bool `toml:"send_timecode"`
	ZynthianMasterChannel int  `toml:"zynthian_master_channel"`
}

// FilterEntryConfig is one entry of a named filter table (spec.md §4.2).
type FilterEntryConfig struct {
	MatchStatus  string `toml:"match_status"`
	MatchChannel int    `toml:"match_channel"` // -1 = any
	MatchNote    int    `toml:"match_note"`    // -1 = any
	RewriteNote  int    `toml:"rewrite_note"`  // -1 = no rewrite
	RewriteChannel int  `toml:"rewrite_channel"`
	Block        bool
}

// File is the top-level shape of the TOML config file: the router
// device table, named filter tables, and the zynthian-channel map.
type File struct {
	Devices map[string]DeviceConfig            `toml:"device"`
	Filters map[string][]FilterEntryConfig     `toml:"filter"`

	// ZynthianChannelMap maps a global zynthian slot (0..15) to the
	// hardware id of the device whose output port backs that slot.
	ZynthianChannelMap map[string]string `toml:"zynthian_channel_map"`
}

// LoadFile parses a TOML config file from path.
func LoadFile(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, fmt.Errorf("config: decoding %q: %w", path, err)
	}
	return f, nil
}
