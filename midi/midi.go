// Package midi decodes Standard MIDI Files into render timelines.
package midi

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/browser-vm/midi2wav"
)

const defaultBPM = 120

type (
	tempoChange struct {
		tick uint64
		bpm  float64
		sec  float64 // seconds elapsed up to tick, precomputed
	}

	tempoMap struct {
		clock   smf.MetricTicks
		changes []tempoChange
	}

	openNote struct {
		start    float64
		velocity float64
	}
)

// ReadFile reads and decodes a .mid file.
func ReadFile(path string) (*midi2wav.Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MIDI file failed: %w", err)
	}
	return Parse(data)
}

// Parse decodes the bytes of a Standard MIDI File into a Timeline: one
// timeline track per SMF track, note-on/note-off pairs turned into NoteEvents
// with start and duration in seconds. Tick times are converted through the
// file's tempo map, so files with tempo changes keep their timing. A note-on
// with velocity 0 counts as a note-off; notes still sounding at the end of a
// track are closed there.
func Parse(data []byte) (*midi2wav.Timeline, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing MIDI file failed: %w", err)
	}
	clock, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported MIDI time format %v", s.TimeFormat)
	}
	tm := newTempoMap(clock, s.Tracks)
	timeline := &midi2wav.Timeline{}
	for _, track := range s.Tracks {
		if t := convertTrack(track, tm); len(t.Events) > 0 {
			timeline.Tracks = append(timeline.Tracks, t)
		}
	}
	return timeline, nil
}

func convertTrack(track smf.Track, tm *tempoMap) midi2wav.Track {
	var t midi2wav.Track
	open := make(map[uint8][]openNote)
	var tick uint64
	for _, ev := range track {
		tick += uint64(ev.Delta)
		var name string
		if ev.Message.GetMetaTrackName(&name) {
			t.Name = name
			continue
		}
		var channel, key, velocity uint8
		switch {
		case ev.Message.GetNoteOn(&channel, &key, &velocity):
			if velocity == 0 { // a zero velocity note-on is a note-off
				closeNote(&t, open, key, tm.timeAt(tick))
				continue
			}
			open[key] = append(open[key], openNote{
				start:    tm.timeAt(tick),
				velocity: float64(velocity) / 127,
			})
		case ev.Message.GetNoteOff(&channel, &key, &velocity):
			closeNote(&t, open, key, tm.timeAt(tick))
		}
	}
	// close anything still sounding at the end of the track; keys in order so
	// the resulting event order does not depend on map iteration
	end := tm.timeAt(tick)
	keys := make([]int, 0, len(open))
	for key := range open {
		keys = append(keys, int(key))
	}
	sort.Ints(keys)
	for _, key := range keys {
		for range open[uint8(key)] {
			closeNote(&t, open, uint8(key), end)
		}
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		return t.Events[i].Start < t.Events[j].Start
	})
	return t
}

// closeNote pops the most recent open note on key; simultaneous identical
// notes close in reverse open order, like a stack.
func closeNote(t *midi2wav.Track, open map[uint8][]openNote, key uint8, end float64) {
	notes := open[key]
	if len(notes) == 0 {
		return // note-off without a matching note-on, ignore
	}
	note := notes[len(notes)-1]
	open[key] = notes[:len(notes)-1]
	if end <= note.start {
		return
	}
	t.Events = append(t.Events, midi2wav.NoteEvent{
		Pitch:    int(key),
		Velocity: note.velocity,
		Start:    note.start,
		Duration: end - note.start,
	})
}

// newTempoMap collects the tempo changes of every track into one ordered map
// from absolute tick to elapsed seconds. SMF type 1 files carry the tempo in
// the first track, but scanning all of them costs nothing and also covers
// type 0 files.
func newTempoMap(clock smf.MetricTicks, tracks []smf.Track) *tempoMap {
	tm := &tempoMap{clock: clock, changes: []tempoChange{{tick: 0, bpm: defaultBPM}}}
	for _, track := range tracks {
		var tick uint64
		for _, ev := range track {
			tick += uint64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				tm.changes = append(tm.changes, tempoChange{tick: tick, bpm: bpm})
			}
		}
	}
	sort.SliceStable(tm.changes, func(i, j int) bool {
		return tm.changes[i].tick < tm.changes[j].tick
	})
	for i := 1; i < len(tm.changes); i++ {
		prev := tm.changes[i-1]
		delta := uint32(tm.changes[i].tick - prev.tick)
		tm.changes[i].sec = prev.sec + clock.Duration(prev.bpm, delta).Seconds()
	}
	return tm
}

// timeAt converts an absolute tick to seconds, honoring every tempo change
// before it.
func (tm *tempoMap) timeAt(tick uint64) float64 {
	cur := tm.changes[0]
	for _, change := range tm.changes[1:] {
		if change.tick > tick {
			break
		}
		cur = change
	}
	return cur.sec + tm.clock.Duration(cur.bpm, uint32(tick-cur.tick)).Seconds()
}
