package midi2wav_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/browser-vm/midi2wav"
	"gopkg.in/yaml.v3"
)

func TestTimelineDuration(t *testing.T) {
	timeline := &midi2wav.Timeline{Tracks: []midi2wav.Track{
		{Events: []midi2wav.NoteEvent{
			{Pitch: 60, Velocity: 1, Start: 0, Duration: 1},
			{Pitch: 62, Velocity: 1, Start: 3, Duration: 0.5},
		}},
		{Events: []midi2wav.NoteEvent{
			{Pitch: 40, Velocity: 1, Start: 1, Duration: 2},
		}},
	}}
	if d := timeline.Duration(); d != 3.5 {
		t.Fatalf("expected duration 3.5, got %v", d)
	}
	empty := &midi2wav.Timeline{}
	if d := empty.Duration(); d != 0 {
		t.Fatalf("expected duration 0 for an empty timeline, got %v", d)
	}
}

func TestTimelineEventsStableSort(t *testing.T) {
	// simultaneous events must keep track order, then insertion order
	timeline := &midi2wav.Timeline{Tracks: []midi2wav.Track{
		{Events: []midi2wav.NoteEvent{
			{Pitch: 1, Velocity: 1, Start: 0.5, Duration: 1},
			{Pitch: 2, Velocity: 1, Start: 0, Duration: 1},
			{Pitch: 3, Velocity: 1, Start: 0, Duration: 1},
		}},
		{Events: []midi2wav.NoteEvent{
			{Pitch: 4, Velocity: 1, Start: 0, Duration: 1},
		}},
	}}
	events := timeline.Events()
	pitches := make([]int, len(events))
	for i, e := range events {
		pitches[i] = e.Pitch
	}
	if !reflect.DeepEqual(pitches, []int{2, 3, 4, 1}) {
		t.Fatalf("expected stable order [2 3 4 1], got %v", pitches)
	}
}

func TestNoteEventValid(t *testing.T) {
	for _, tc := range []struct {
		name  string
		event midi2wav.NoteEvent
		valid bool
	}{
		{"ok", midi2wav.NoteEvent{Pitch: 60, Velocity: 1, Start: 0, Duration: 1}, true},
		{"tiny velocity ok", midi2wav.NoteEvent{Pitch: 60, Velocity: 0.001, Start: 0, Duration: 1}, true},
		{"zero velocity", midi2wav.NoteEvent{Pitch: 60, Velocity: 0, Start: 0, Duration: 1}, false},
		{"negative velocity", midi2wav.NoteEvent{Pitch: 60, Velocity: -1, Start: 0, Duration: 1}, false},
		{"nan start", midi2wav.NoteEvent{Pitch: 60, Velocity: 1, Start: math.NaN(), Duration: 1}, false},
		{"inf duration", midi2wav.NoteEvent{Pitch: 60, Velocity: 1, Start: 0, Duration: math.Inf(1)}, false},
		{"zero duration", midi2wav.NoteEvent{Pitch: 60, Velocity: 1, Start: 0, Duration: 0}, false},
		{"negative start", midi2wav.NoteEvent{Pitch: 60, Velocity: 1, Start: -1, Duration: 1}, false},
		{"pitch out of range", midi2wav.NoteEvent{Pitch: 200, Velocity: 1, Start: 0, Duration: 1}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.Valid(); got != tc.valid {
				t.Fatalf("expected Valid() == %v", tc.valid)
			}
		})
	}
}

func TestTimelineCopy(t *testing.T) {
	original := &midi2wav.Timeline{Tracks: []midi2wav.Track{
		{Name: "lead", Events: []midi2wav.NoteEvent{{Pitch: 60, Velocity: 1, Start: 0, Duration: 1}}},
	}}
	copied := original.Copy()
	copied.Tracks[0].Events[0].Pitch = 72
	if original.Tracks[0].Events[0].Pitch != 60 {
		t.Fatalf("Copy shares event storage with the original")
	}
}

func TestTimelineYAMLRoundTrip(t *testing.T) {
	original := midi2wav.Timeline{Tracks: []midi2wav.Track{
		{Name: "lead", Events: []midi2wav.NoteEvent{
			{Pitch: 69, Velocity: 1, Start: 0, Duration: 0.5},
			{Pitch: 72, Velocity: 0.25, Start: 0.5, Duration: 0.25},
		}},
	}}
	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var parsed midi2wav.Timeline
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(original, parsed) {
		t.Fatalf("YAML round trip mismatch:\nwant %+v\ngot  %+v", original, parsed)
	}
}
