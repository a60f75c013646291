package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileParsesDeviceAndFilterTables(t *testing.T) {
	content := `
[device.hw1]
name = "Launchkey"
accepted_channels = [0, 1, 2]
send_beat_clock = true
zynthian_master_channel = 0

[[filter.hw1-in]]
match_status = "note_on"
match_channel = -1
match_note = -1
rewrite_note = -1
rewrite_channel = 2
block = false

[zynthian_channel_map]
"0" = "hw1"
`
	path := filepath.Join(t.TempDir(), "zlcore.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	dev, ok := f.Devices["hw1"]
	if !ok {
		t.Fatalf("expected device hw1 to be present, got %+v", f.Devices)
	}
	if dev.Name != "Launchkey" || !dev.SendBeatClock {
		t.Errorf("unexpected device config: %+v", dev)
	}
	if len(dev.AcceptedChannels) != 3 {
		t.Errorf("expected 3 accepted channels, got %v", dev.AcceptedChannels)
	}

	entries, ok := f.Filters["hw1-in"]
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one filter entry for hw1-in, got %v", f.Filters)
	}
	if entries[0].RewriteChannel != 2 {
		t.Errorf("expected rewrite channel 2, got %d", entries[0].RewriteChannel)
	}

	if f.ZynthianChannelMap["0"] != "hw1" {
		t.Errorf("expected zynthian slot 0 mapped to hw1, got %v", f.ZynthianChannelMap)
	}
}
