package midi2wav

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/viterin/vek/vek32"
)

type (
	// AudioBuffer is a multichannel buffer of float32 samples, one slice per
	// channel, all of equal length. Samples are nominally in [-1,1] but may
	// exceed that range while mixing; clamping happens at encode time.
	AudioBuffer [][]float32

	// Stage identifies the coarse phases of a conversion, for progress
	// reporting.
	Stage int

	// Options control one conversion. The zero value selects the defaults:
	// 44100 Hz, 2 channels, invalid notes skipped with a warning.
	Options struct {
		SampleRate int // output sample rate in Hz, default 44100
		Channels   int // output channel count, default 2

		// StrictNotes aborts the render on the first invalid note instead of
		// skipping it.
		StrictNotes bool

		// Progress, if set, is called after each completed stage with the
		// overall fraction done. Coarse-grained: per stage, not per frame.
		Progress func(Stage, float64)

		// OnWarning, if set, receives one error per skipped invalid note.
		OnWarning func(error)
	}
)

const (
	StageBank Stage = iota
	StageMix
	StageEncode
)

func (s Stage) String() string {
	switch s {
	case StageBank:
		return "bank"
	case StageMix:
		return "mix"
	case StageEncode:
		return "encode"
	}
	return "unknown"
}

const (
	defaultSampleRate = 44100
	defaultChannels   = 2

	// voices at least this long have their samples generated in parallel
	// chunks; shorter ones are not worth the goroutine overhead
	parallelFillThreshold = 1 << 14
)

// NewAudioBuffer allocates a zero-initialized buffer of channels × frames.
func NewAudioBuffer(channels, frames int) AudioBuffer {
	buffer := make(AudioBuffer, channels)
	for i := range buffer {
		buffer[i] = make([]float32, frames)
	}
	return buffer
}

// Channels returns the number of channels in the buffer.
func (b AudioBuffer) Channels() int { return len(b) }

// Frames returns the number of frames per channel.
func (b AudioBuffer) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

func (o *Options) fillDefaults() {
	if o.SampleRate == 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.Channels == 0 {
		o.Channels = defaultChannels
	}
}

func (o *Options) validate() error {
	if o.SampleRate < 1 {
		return fmt.Errorf("sample rate should be > 0, got %v", o.SampleRate)
	}
	if o.Channels < 1 {
		return fmt.Errorf("channel count should be > 0, got %v", o.Channels)
	}
	return nil
}

func (o *Options) progress(stage Stage, fraction float64) {
	if o.Progress != nil {
		o.Progress(stage, fraction)
	}
}

func (o *Options) warn(err error) {
	if o.OnWarning != nil {
		o.OnWarning(err)
	}
}

// frameForTime converts a time in seconds to a frame index. Event times are
// converted exactly once, here, and never re-derived from frame counts, so
// rounding cannot drift between components.
func frameForTime(t float64, sampleRate int) int {
	return int(math.Round(t * float64(sampleRate)))
}

// Render mixes the timeline into a freshly allocated AudioBuffer. Events are
// flattened over all tracks and stable-sorted by start time, so simultaneous
// events are always summed in track/insertion order and the output is
// reproducible. Each voice is mixed identically into every channel; there is
// no panning and no normalization.
func Render(timeline *Timeline, bank *InstrumentBank, opts Options) (AudioBuffer, error) {
	opts.fillDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	events := timeline.Events()
	valid := events[:0]
	maxEnd := 0.0
	for _, e := range events {
		if !e.Valid() {
			err := fmt.Errorf("%w: pitch %v velocity %v start %v duration %v", ErrInvalidNote, e.Pitch, e.Velocity, e.Start, e.Duration)
			if opts.StrictNotes {
				return nil, err
			}
			opts.warn(err)
			continue
		}
		valid = append(valid, e)
		if end := e.End(); end > maxEnd {
			maxEnd = end
		}
	}
	if len(valid) == 0 {
		return nil, ErrEmptyTimeline
	}
	totalFrames := int(math.Ceil(maxEnd * float64(opts.SampleRate)))
	buffer := NewAudioBuffer(opts.Channels, totalFrames)
	scratch := make([]float32, 0, totalFrames)
	for _, e := range valid {
		start := frameForTime(e.Start, opts.SampleRate)
		length := frameForTime(e.End(), opts.SampleRate) - start
		if length <= 0 {
			continue // note shorter than one frame
		}
		voice, err := NewVoice(e.Pitch, e.Velocity, length, opts.SampleRate, bank)
		if err != nil {
			return nil, err
		}
		// start should always be in range given how totalFrames is computed,
		// but an out of range write corrupts memory, so clip instead of
		// trusting the arithmetic
		if start >= totalFrames || start < 0 {
			continue
		}
		if start+length > totalFrames {
			length = totalFrames - start
		}
		scratch = scratch[:length]
		fillSamples(voice, scratch)
		for c := range buffer {
			vek32.Add_Inplace(buffer[c][start:start+length], scratch)
		}
	}
	return buffer, nil
}

// fillSamples evaluates scratch[i] = voice.Sample(i). Voice.Sample is pure,
// so long voices are split into disjoint chunks evaluated in parallel; every
// worker writes its own range only, which keeps the result bit-identical to
// the serial evaluation no matter how the goroutines are scheduled.
func fillSamples(voice *Voice, scratch []float32) {
	workers := runtime.GOMAXPROCS(0)
	if len(scratch) < parallelFillThreshold || workers < 2 {
		for i := range scratch {
			scratch[i] = voice.Sample(i)
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (len(scratch) + workers - 1) / workers
	for start := 0; start < len(scratch); start += chunk {
		end := min(start+chunk, len(scratch))
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				scratch[i] = voice.Sample(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Convert is the end-to-end entry point: it loads the optional instrument
// bank, renders the timeline and encodes the result as a WAV file. bankData
// may be nil to synthesize every note with the built-in oscillator. Each call
// owns its buffer and voices exclusively, so concurrent Converts are safe.
func Convert(timeline *Timeline, bankData []byte, opts Options) ([]byte, error) {
	opts.fillDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	var bank *InstrumentBank
	if bankData != nil {
		var err error
		if bank, err = ParseBank(bankData); err != nil {
			return nil, err
		}
	}
	opts.progress(StageBank, 1.0/3)
	buffer, err := Render(timeline, bank, opts)
	if err != nil {
		return nil, err
	}
	opts.progress(StageMix, 2.0/3)
	data, err := Wav(buffer, opts.SampleRate)
	if err != nil {
		return nil, err
	}
	opts.progress(StageEncode, 1)
	return data, nil
}
