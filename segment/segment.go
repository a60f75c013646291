// Package segment implements the Segment Handler (spec.md §4.8):
// song-mode playback driven by a sorted tick -> []TimerCommand playlist
// built from a song's segments.
//
// Grounded on original_source/src/SegmentHandler.cpp's playhead/duration
// model (a local playhead distinct from the sync timer's own tick
// counter, reset to -1 when stopped) and on
// chriskillpack-modplayer/cmd/modplay/play.go's AudioPlayer pattern of
// driving playback from a precomputed schedule rather than recomputing
// state every tick.
package segment

import (
	"sort"

	"github.com/openzl/zlcore/synctimer"
)

// ClipRef identifies one (track, clip) pair present in a segment.
type ClipRef struct {
	Track, Clip int
}

// Segment is one song segment: the set of clips/parts playing across its
// span, starting at StartTick and running for Ticks.
type Segment struct {
	StartTick    int64
	Ticks        int64
	Clips        []ClipRef
	RestartClips []ClipRef // clips to re-trigger even if already playing
}

// TimerSink is the narrow synctimer.Timer surface the segment handler
// schedules commands through.
type TimerSink interface {
	ScheduleTimerCommand(cmd *synctimer.TimerCommand, delayTicks int64)
	GetTimerCommand() (*synctimer.TimerCommand, error)
}

// Handler drives song-mode playback.
type Handler struct {
	Sink TimerSink

	segments []Segment
	playlist []tickCommands // sorted ascending by tick
	staged   []*synctimer.TimerCommand
	playhead int64 // -1 when stopped
	duration int64
}

type tickCommands struct {
	tick int64
	cmds []*synctimer.TimerCommand
}

// New constructs a Handler over the given sink, initially stopped.
func New(sink TimerSink) *Handler {
	return &Handler{Sink: sink, playhead: -1}
}

// Playhead returns the current song-mode tick, or -1 when stopped.
func (h *Handler) Playhead() int64 { return h.playhead }

// Duration returns the total tick span of the last built playlist.
func (h *Handler) Duration() int64 { return h.duration }

// StartPlayback builds the tick -> commands playlist from segments and
// begins playback at startOffset, per spec.md §4.8.
func (h *Handler) StartPlayback(segments []Segment, startOffset int64) {
	h.segments = segments
	h.playlist = buildPlaylist(segments)
	h.staged = nil
	h.playhead = startOffset
	h.duration = totalDuration(segments)
}

// totalDuration is the song's end tick: the last segment's start plus
// its length.
func totalDuration(segments []Segment) int64 {
	var end int64
	for _, s := range segments {
		if t := s.StartTick + s.Ticks; t > end {
			end = t
		}
	}
	return end
}

// buildPlaylist implements spec.md §4.8's playlist construction: for
// each segment, clips newly present (or listed in RestartClips) get a
// start command at the segment's start tick; clips present in the
// previous segment but absent from this one get the matching stop
// command. A terminal StopPlayback is appended at the end.
func buildPlaylist(segments []Segment) []tickCommands {
	byTick := make(map[int64][]*synctimer.TimerCommand)
	var prev map[ClipRef]bool

	appendCmd := func(tick int64, cmd *synctimer.TimerCommand) {
		byTick[tick] = append(byTick[tick], cmd)
	}

	var lastEnd int64
	for _, seg := range segments {
		cur := make(map[ClipRef]bool, len(seg.Clips))
		restart := make(map[ClipRef]bool, len(seg.RestartClips))
		for _, c := range seg.RestartClips {
			restart[c] = true
		}
		for _, c := range seg.Clips {
			cur[c] = true
			if !prev[c] || restart[c] {
				appendCmd(seg.StartTick, &synctimer.TimerCommand{Op: synctimer.OpStartClipLoop, Track: c.Track, Clip: c.Clip})
			}
		}
		for c := range prev {
			if !cur[c] {
				appendCmd(seg.StartTick, &synctimer.TimerCommand{Op: synctimer.OpStopClipLoop, Track: c.Track, Clip: c.Clip})
			}
		}
		prev = cur
		if end := seg.StartTick + seg.Ticks; end > lastEnd {
			lastEnd = end
		}
	}
	appendCmd(lastEnd, &synctimer.TimerCommand{Op: synctimer.OpStopPlayback})

	ticks := make([]int64, 0, len(byTick))
	for t := range byTick {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	playlist := make([]tickCommands, 0, len(ticks))
	for _, t := range ticks {
		playlist = append(playlist, tickCommands{tick: t, cmds: byTick[t]})
	}
	return playlist
}

// Advance is the per-tick entry point: if the playlist has an entry at
// tick, every command in it is scheduled into the sync timer at delay 0
// and recorded as staged (for a later reverse-on-stop).
func (h *Handler) Advance(tick int64) {
	if h.playhead < 0 {
		return
	}
	h.playhead = tick

	for _, entry := range h.playlist {
		if entry.tick != tick {
			continue
		}
		for _, cmd := range entry.cmds {
			if h.Sink != nil {
				h.Sink.ScheduleTimerCommand(cmd, 0)
			}
			h.staged = append(h.staged, cmd)
		}
	}
}

// StopPlayback implements spec.md §4.8's symmetric unwind: every staged
// command is reissued in reverse order with starts turned into stops (so
// everything still playing gets torn down), then the playhead resets to
// -1.
func (h *Handler) StopPlayback() {
	for i := len(h.staged) - 1; i >= 0; i-- {
		cmd := h.staged[i]
		inverse := invert(cmd)
		if inverse != nil && h.Sink != nil {
			h.Sink.ScheduleTimerCommand(inverse, 0)
		}
	}
	h.staged = nil
	h.playhead = -1
}

// invert maps a start command to its matching stop command; stop
// commands and StopPlayback have no inverse and are dropped.
func invert(cmd *synctimer.TimerCommand) *synctimer.TimerCommand {
	switch cmd.Op {
	case synctimer.OpStartClipLoop:
		return &synctimer.TimerCommand{Op: synctimer.OpStopClipLoop, Track: cmd.Track, Clip: cmd.Clip}
	case synctimer.OpStartPart:
		return &synctimer.TimerCommand{Op: synctimer.OpStopPart, Track: cmd.Track, Clip: cmd.Clip}
	default:
		return nil
	}
}
