package midi2wav

import (
	"math"
	"sort"
)

type (
	// NoteEvent is one note in a track: a MIDI key, a velocity in [0,1] and a
	// start time and duration in seconds. NoteEvents are read-only to the
	// renderer; they are never mutated after the timeline has been built.
	NoteEvent struct {
		Pitch    int     `yaml:"pitch"`
		Velocity float64 `yaml:"velocity"`
		Start    float64 `yaml:"start"`
		Duration float64 `yaml:"duration"`
	}

	// Track is an ordered sequence of NoteEvents. The events do not have to be
	// sorted by start time; the renderer sorts them before scheduling, keeping
	// the insertion order of simultaneous events.
	Track struct {
		Name   string      `yaml:"name,omitempty"`
		Events []NoteEvent `yaml:"events"`
	}

	// Timeline is the full arrangement to render: just a list of tracks. The
	// duration of a timeline is the largest end time over all of its events.
	Timeline struct {
		Tracks []Track `yaml:"tracks"`
	}
)

// End returns the end time of the event, in seconds.
func (e NoteEvent) End() float64 {
	return e.Start + e.Duration
}

// Valid reports whether the event can be rendered: velocity must be positive,
// times finite and duration positive. Velocity above 1 is allowed; the mix is
// clamped only at encode time.
func (e NoteEvent) Valid() bool {
	if e.Pitch < 0 || e.Pitch > 127 {
		return false
	}
	if !(e.Velocity > 0) || math.IsInf(e.Velocity, 0) {
		return false
	}
	if math.IsNaN(e.Start) || math.IsInf(e.Start, 0) || e.Start < 0 {
		return false
	}
	return e.Duration > 0 && !math.IsInf(e.Duration, 0)
}

// Copy makes a deep copy of a Track.
func (t *Track) Copy() Track {
	events := make([]NoteEvent, len(t.Events))
	copy(events, t.Events)
	return Track{Name: t.Name, Events: events}
}

// Copy makes a deep copy of a Timeline.
func (l *Timeline) Copy() Timeline {
	tracks := make([]Track, len(l.Tracks))
	for i, t := range l.Tracks {
		tracks[i] = t.Copy()
	}
	return Timeline{Tracks: tracks}
}

// NumEvents returns the total number of events over all tracks.
func (l *Timeline) NumEvents() int {
	ret := 0
	for _, t := range l.Tracks {
		ret += len(t.Events)
	}
	return ret
}

// Duration returns the length of the timeline in seconds: the maximum end
// time over all events, or 0 for a timeline with no events.
func (l *Timeline) Duration() float64 {
	ret := 0.0
	for _, t := range l.Tracks {
		for _, e := range t.Events {
			if end := e.End(); end > ret {
				ret = end
			}
		}
	}
	return ret
}

// Events flattens all tracks into one sequence, stable-sorted by start time.
// Simultaneous events keep their track order and, within a track, their
// insertion order, so the result is the same for every call; the renderer
// relies on this for reproducible output.
func (l *Timeline) Events() []NoteEvent {
	events := make([]NoteEvent, 0, l.NumEvents())
	for _, t := range l.Tracks {
		events = append(events, t.Events...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start < events[j].Start
	})
	return events
}
