package midi2wav

import "errors"

// The render pipeline reports failures through these sentinel errors, wrapped
// with a detail string; match them with errors.Is.
var (
	// ErrMalformedBank means the instrument bank container could not be
	// parsed. The caller may choose to render without a bank instead.
	ErrMalformedBank = errors.New("malformed instrument bank")

	// ErrInvalidNote means an event had a non-positive velocity, a non-finite
	// time or a non-positive duration. By default such events are skipped and
	// surfaced through Options.OnWarning; Options.StrictNotes aborts instead.
	ErrInvalidNote = errors.New("invalid note")

	// ErrEmptyTimeline means there were no renderable events. Fatal for the
	// request.
	ErrEmptyTimeline = errors.New("timeline contains no renderable events")

	// ErrEncodingFailure means the buffer handed to the encoder was
	// structurally broken; an internal invariant violation, not a user error.
	ErrEncodingFailure = errors.New("encoding failure")
)
